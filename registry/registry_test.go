package registry

import "testing"

func TestRegisterAndGetIsCaseInsensitive(t *testing.T) {
	r := New[func() int]()
	if err := r.Register("JSON", func() int { return 1 }); err != nil {
		t.Fatal(err)
	}

	ctor, ok := r.Get("json")
	if !ok {
		t.Fatal("expected a case-insensitive lookup to find the provider")
	}
	if ctor() != 1 {
		t.Fatalf("expected constructor to return 1, got %d", ctor())
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := New[func() int]()
	if err := r.Register("mem", func() int { return 1 }); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("MEM", func() int { return 2 }); err == nil {
		t.Fatal("expected a duplicate registration to fail")
	}
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := New[func() int]()
	if err := r.Register("", func() int { return 1 }); err == nil {
		t.Fatal("expected an empty provider name to be rejected")
	}
}

func TestNamesReturnsSortedKeys(t *testing.T) {
	r := New[func() int]()
	r.Register("s3", func() int { return 1 })
	r.Register("dynamo", func() int { return 2 })
	r.Register("mem", func() int { return 3 })

	names := r.Names()
	want := []string{"dynamo", "mem", "s3"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestGetReportsMissingProvider(t *testing.T) {
	r := New[func() int]()
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected lookup of an unregistered name to report false")
	}
}
