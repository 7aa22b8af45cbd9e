package runnerlog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stratoform/controlplane/schema"
)

// MemProvider is an in-process Provider used by tests and local
// development: log lines are appended in-memory, keyed by job.
type MemProvider struct {
	mu    sync.RWMutex
	lines map[string][]Entry
}

func NewMemProvider() *MemProvider {
	return &MemProvider{lines: make(map[string][]Entry)}
}

// Append adds one log line for a job, used by test setup and by a local
// subprocess runner integration that writes directly into this provider
// instead of shipping to a real log transport.
func (p *MemProvider) Append(jobID string, entry Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines[jobID] = append(p.lines[jobID], entry)
}

func (p *MemProvider) Query(ctx context.Context, q Query) (Page, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	all := p.lines[q.JobID]
	sorted := make([]Entry, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampEpoch < sorted[j].TimestampEpoch })

	start := 0
	if offset, ok := q.PageToken.LastKey["offset"]; ok {
		fmt.Sscanf(offset, "%d", &start)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = len(sorted)
	}

	end := start + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	if start > len(sorted) {
		start = len(sorted)
	}

	page := Page{Entries: sorted[start:end]}
	if end < len(sorted) {
		page.NextToken = schema.PageToken{LastKey: map[string]string{"offset": fmt.Sprintf("%d", end)}}.Encode()
	}
	return page, nil
}
