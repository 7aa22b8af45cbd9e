package packaging

import "testing"

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"bucketName": "bucket_name",
		"BucketName": "bucket_name",
		"bucket1a":   "bucket1a",
		"bucket2":    "bucket2",
	}
	for in, want := range cases {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToCamelCase(t *testing.T) {
	if got := toCamelCase("bucket_name"); got != "bucketName" {
		t.Errorf("toCamelCase(bucket_name) = %q", got)
	}
}
