package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stratoform/controlplane/dispatcher"
	"github.com/stratoform/controlplane/objectstore"
	"github.com/stratoform/controlplane/packaging"
	"github.com/stratoform/controlplane/runner"
	"github.com/stratoform/controlplane/runnerlog"
	"github.com/stratoform/controlplane/store"
)

// newTestServer wires a Server against the in-memory substrate/object-store
// implementations, the way a local-dev controlplaned binary does, so
// handlers can be exercised end to end without any external dependency.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	md := store.NewMetadata(store.NewMemStore())
	objStore := objectstore.NewMemStore()
	srv := NewServer(Config{Region: "us-east-1", Version: "test"}, zap.NewNop(), nil)
	srv.Metadata = md
	srv.ObjectStore = objStore
	srv.Packaging = packaging.NewEngine(md, objStore, []string{"us-east-1"})
	srv.Dispatcher = dispatcher.New(md, runner.NewFakeExecutor())
	srv.AccessCache = dispatcher.NewMemCache()
	srv.RunnerLog = runnerlog.NewMemProvider()
	return srv
}

func newCtx() context.Context {
	return context.Background()
}

// newArchiveWithTf builds a minimal single-file module archive, just enough
// IaC source for ExtractVariablesAndOutputs to parse without error.
func newArchiveWithTf(module string) *packaging.Archive {
	a := packaging.NewArchive()
	a.AddFile(module+".tf", []byte(`variable "name" {
  type = string
}

output "id" {
  value = "id"
}
`))
	return a
}

// withChiContext attaches a chi route context to req's context, letting a
// handler be invoked directly (bypassing the router) while still resolving
// chi.URLParam calls.
func withChiContext(req *http.Request, rctx *chi.Context) context.Context {
	return context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
}
