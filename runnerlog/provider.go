// Package runnerlog implements the out-of-scope "log transport" collaborator
// spec.md names: the runner writes a job's stdout somewhere the control
// plane doesn't own, and GET /api/v1/logs reads it back through this
// pluggable Provider.
package runnerlog

import (
	"context"

	"github.com/stratoform/controlplane/registry"
	"github.com/stratoform/controlplane/schema"
)

// Query selects one job's log lines, paginated the same way every other
// list endpoint is (spec.md §6): a limit and an opaque next-token.
type Query struct {
	ProjectID string
	Region    string
	JobID     string
	Limit     int
	PageToken schema.PageToken
}

// Entry is one log line, timestamped by the runner.
type Entry struct {
	TimestampEpoch int64  `json:"timestampEpoch"`
	Line           string `json:"line"`
}

// Page is one page of a job's log, plus the token to fetch the next page.
// An empty NextToken signals end-of-stream.
type Page struct {
	Entries   []Entry
	NextToken string
}

// Provider defines the capability surface for log transport adapters
// (CloudWatch Logs, Loki, a local file, …).
type Provider interface {
	Query(ctx context.Context, q Query) (Page, error)
}

// Constructor builds a log provider from decrypted configuration.
type Constructor func(config map[string]any) (Provider, error)

var providers = registry.New[Constructor]()

func RegisterProvider(name string, constructor Constructor) error {
	return providers.Register(name, constructor)
}

func LookupProvider(name string) (Constructor, bool) {
	return providers.Get(name)
}

func Providers() []string {
	return providers.Names()
}
