package runnerlog

import (
	"context"
	"testing"

	"github.com/stratoform/controlplane/schema"
)

func TestMemProviderPaginates(t *testing.T) {
	ctx := context.Background()
	p := NewMemProvider()
	for i := 0; i < 5; i++ {
		p.Append("job1", Entry{TimestampEpoch: int64(i), Line: "line"})
	}

	page, err := p.Query(ctx, Query{JobID: "job1", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Entries) != 2 || page.NextToken == "" {
		t.Fatalf("expected 2 entries and a next token, got %+v", page)
	}

	tok, err := schema.DecodePageToken(page.NextToken)
	if err != nil {
		t.Fatal(err)
	}
	page2, err := p.Query(ctx, Query{JobID: "job1", Limit: 2, PageToken: tok})
	if err != nil {
		t.Fatal(err)
	}
	if len(page2.Entries) != 2 {
		t.Fatalf("expected 2 more entries, got %d", len(page2.Entries))
	}
}

func TestMemProviderEndOfStream(t *testing.T) {
	ctx := context.Background()
	p := NewMemProvider()
	p.Append("job1", Entry{TimestampEpoch: 0, Line: "only line"})

	page, err := p.Query(ctx, Query{JobID: "job1", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if page.NextToken != "" {
		t.Fatalf("expected empty next token signaling end of stream")
	}
}
