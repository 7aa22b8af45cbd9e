// Command controlplaned runs the control-plane HTTP boundary: it wires the
// metadata store, object store, packaging engine, claim dispatcher, and
// supply-chain verifier together from environment configuration and serves
// the chi-routed API until the process is signaled to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stratoform/controlplane/api"
	"github.com/stratoform/controlplane/changefilter"
	"github.com/stratoform/controlplane/dispatcher"
	"github.com/stratoform/controlplane/objectstore"
	"github.com/stratoform/controlplane/packaging"
	"github.com/stratoform/controlplane/registry"
	"github.com/stratoform/controlplane/runner"
	"github.com/stratoform/controlplane/runnerlog"
	"github.com/stratoform/controlplane/store"
	"github.com/stratoform/controlplane/verify"
)

// substrateProviders, objectStoreProviders and executorProviders hold the
// named backend constructors buildSubstrate/buildObjectStore/buildExecutor
// select from, the same named-constructor pattern secret.Provider and
// runnerlog.Provider register against.
var (
	substrateProviders   = registry.New[func(ctx context.Context) (store.Substrate, error)]()
	objectStoreProviders = registry.New[func(ctx context.Context) (objectstore.Store, error)]()
	executorProviders    = registry.New[func() (runner.Executor, error)]()
)

func init() {
	substrateProviders.Register("mem", func(ctx context.Context) (store.Substrate, error) {
		return store.NewMemStore(), nil
	})
	substrateProviders.Register("dynamo", func(ctx context.Context) (store.Substrate, error) {
		table := os.Getenv("STRATOFORM_TABLE")
		if table == "" {
			return nil, fmt.Errorf("STRATOFORM_TABLE is required for the dynamo substrate backend")
		}
		awsCfg, err := loadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), table), nil
	})

	objectStoreProviders.Register("mem", func(ctx context.Context) (objectstore.Store, error) {
		return objectstore.NewMemStore(), nil
	})
	objectStoreProviders.Register("s3", func(ctx context.Context) (objectstore.Store, error) {
		bucket := os.Getenv("STRATOFORM_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("STRATOFORM_BUCKET is required for the s3 object-store backend")
		}
		awsCfg, err := loadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		return objectstore.NewS3Store(s3.NewFromConfig(awsCfg), bucket), nil
	})

	executorProviders.Register("fake", func() (runner.Executor, error) {
		return runner.NewFakeExecutor(), nil
	})
	executorProviders.Register("subprocess", func() (runner.Executor, error) {
		path := os.Getenv("STRATOFORM_RUNNER_PLUGIN")
		if path == "" {
			return nil, fmt.Errorf("STRATOFORM_RUNNER_PLUGIN is required for the subprocess executor backend")
		}
		return runner.NewSubprocessExecutor(path, nil), nil
	})
}

func main() {
	log, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := buildServer(ctx, log)
	if err != nil {
		log.Fatal("failed to build server", zap.Error(err))
	}

	addr := os.Getenv("STRATOFORM_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", zap.Error(err))
		}
	}()

	log.Info("control plane listening", zap.String("addr", addr))
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server exited", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if strings.EqualFold(os.Getenv("STRATOFORM_LOG_FORMAT"), "console") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildServer assembles every collaborator from STRATOFORM_* environment
// variables. A missing STRATOFORM_TABLE or STRATOFORM_BUCKET falls back to
// the in-memory Substrate/Store implementations, the same local-dev path
// the packaging and dispatcher test suites exercise, so the binary runs
// standalone without any cloud credentials configured.
func buildServer(ctx context.Context, log *zap.Logger) (*api.Server, error) {
	substrate, err := buildSubstrate(ctx)
	if err != nil {
		return nil, err
	}
	metadata := store.NewMetadata(substrate)

	objStore, err := buildObjectStore(ctx)
	if err != nil {
		return nil, err
	}

	regions := splitAndDefault(os.Getenv("STRATOFORM_REGIONS"), os.Getenv("STRATOFORM_REGION"))
	engine := packaging.NewEngine(metadata, objStore, regions)

	executor, err := buildExecutor()
	if err != nil {
		return nil, err
	}
	claimDispatcher := dispatcher.New(metadata, executor)

	accessCache := buildAccessCache(log)

	cfg := api.ConfigFromEnv()
	reg := prometheus.NewRegistry()
	srv := api.NewServer(cfg, log, reg)
	srv.Metadata = metadata
	srv.ObjectStore = objStore
	srv.Packaging = engine
	srv.Dispatcher = claimDispatcher
	srv.AccessCache = accessCache
	srv.RunnerLog = runnerlog.NewMemProvider()
	srv.VerifyConfig = verify.ConfigFromEnv(log)

	// Loading the resource-change filter here, even though the HTTP
	// boundary never calls it directly, validates
	// STRATOFORM_RESOURCE_CHANGE_FILTER eagerly at startup rather than
	// leaking a bad JSON document into the runner's job-completion path
	// (out of scope per spec.md §1) the first time a plan actually runs.
	changefilter.FromEnv(log)

	return srv, nil
}

// buildSubstrate selects a store.Substrate backend by name via
// substrateProviders, defaulting to "dynamo" when STRATOFORM_TABLE is set
// and "mem" otherwise so the binary still runs standalone with no cloud
// credentials configured.
func buildSubstrate(ctx context.Context) (store.Substrate, error) {
	name := os.Getenv("STRATOFORM_SUBSTRATE_BACKEND")
	if name == "" {
		if os.Getenv("STRATOFORM_TABLE") != "" {
			name = "dynamo"
		} else {
			name = "mem"
		}
	}
	constructor, ok := substrateProviders.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown substrate backend %q (known: %v)", name, substrateProviders.Names())
	}
	return constructor(ctx)
}

// buildObjectStore selects an objectstore.Store backend by name via
// objectStoreProviders, defaulting to "s3" when STRATOFORM_BUCKET is set
// and "mem" otherwise.
func buildObjectStore(ctx context.Context) (objectstore.Store, error) {
	name := os.Getenv("STRATOFORM_OBJECTSTORE_BACKEND")
	if name == "" {
		if os.Getenv("STRATOFORM_BUCKET") != "" {
			name = "s3"
		} else {
			name = "mem"
		}
	}
	constructor, ok := objectStoreProviders.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown object-store backend %q (known: %v)", name, objectStoreProviders.Names())
	}
	return constructor(ctx)
}

// loadAWSConfig resolves the SDK's default credential chain, overridden by
// a static access key pair when STRATOFORM_AWS_ACCESS_KEY_ID and
// STRATOFORM_AWS_SECRET_ACCESS_KEY are both set — useful against a
// non-AWS-IAM S3/DynamoDB-compatible endpoint where the default chain
// (env/shared-config/IMDS) has nothing to find.
func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	accessKey := os.Getenv("STRATOFORM_AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("STRATOFORM_AWS_SECRET_ACCESS_KEY")
	if accessKey == "" || secretKey == "" {
		return awsconfig.LoadDefaultConfig(ctx)
	}
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithCredentialsProvider(
		credentials.NewStaticCredentialsProvider(accessKey, secretKey, os.Getenv("STRATOFORM_AWS_SESSION_TOKEN")),
	))
}

// buildExecutor selects a runner.Executor backend by name via
// executorProviders, defaulting to "subprocess" when STRATOFORM_RUNNER_PLUGIN
// is set and "fake" otherwise, the same local-dev path the dispatcher test
// suite exercises.
func buildExecutor() (runner.Executor, error) {
	name := os.Getenv("STRATOFORM_EXECUTOR_BACKEND")
	if name == "" {
		if os.Getenv("STRATOFORM_RUNNER_PLUGIN") != "" {
			name = "subprocess"
		} else {
			name = "fake"
		}
	}
	constructor, ok := executorProviders.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown executor backend %q (known: %v)", name, executorProviders.Names())
	}
	return constructor()
}

func buildAccessCache(log *zap.Logger) dispatcher.ProjectAccessCache {
	addr := os.Getenv("STRATOFORM_REDIS_ADDR")
	if addr == "" {
		return dispatcher.NewMemCache()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	log.Info("using redis-backed project access cache", zap.String("addr", addr))
	return dispatcher.NewRedisCache(client, "stratoform:allowed-projects:")
}

func splitAndDefault(csv, fallback string) []string {
	if csv == "" {
		if fallback == "" {
			return nil
		}
		return []string{fallback}
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
