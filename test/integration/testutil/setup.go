//go:build integration

package testutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/app"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/guard"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/infra"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/projection"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/referee"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/service"
)

const (
	TestJWTSecret      = "integration-test-secret-0123456789"
	TestReporterSecret = "integration-reporter-secret-012345"
	TestDedupWindow    = 10 * time.Second
	TestDBHost         = "localhost"
	TestDBPort         = 5436
	TestDBUser         = "proctor"
	TestDBPass         = "proctor"
	TestDBName         = "smartproctor_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server    *httptest.Server
	Pool      *pgxpool.Pool
	Store     *repository.PostgresStore
	Engine    *ledger.Engine
	JWTMgr    *auth.JWTManager
	Reporters *auth.ReporterAuthManager
	Logger    *slog.Logger
	t         *testing.T

	clockMu sync.Mutex
	offset  time.Duration
}

// AdvanceClock moves the engine clock forward by d without sleeping.
func (env *TestEnv) AdvanceClock(d time.Duration) {
	env.clockMu.Lock()
	defer env.clockMu.Unlock()
	env.offset += d
}

func (env *TestEnv) now() time.Time {
	env.clockMu.Lock()
	defer env.clockMu.Unlock()
	return time.Now().Add(env.offset)
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "postgres")
}

func ensureTestDB() error {
	if os.Getenv("TEST_DATABASE_URL") != "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		if _, err := bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName)); err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

func runMigrations() error {
	m, err := migrate.New("file://"+filepath.Join(findProjectRoot(), "db", "migrations"), testDSN())
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}
		if err := runMigrations(); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 20
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment with an httptest.Server backed by the
// real router and the Postgres store.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	store := repository.NewPostgresStore(pool)
	cache := projection.NewInMemoryStore()
	hub := infra.NewWSHub([]string{"*"}, logger)
	env := &TestEnv{t: t}
	engine := ledger.NewEngine(store, guard.NewDedupWindow(TestDedupWindow), service.NewLiveNotifier(hub, cache, logger), logger).
		WithClock(env.now)
	jwtMgr := auth.NewJWTManager(TestJWTSecret, time.Hour, time.Hour)
	reporters := auth.NewReporterAuthManager(TestReporterSecret)

	router := app.NewRouter(app.RouterDeps{
		Store:       store,
		Engine:      engine,
		Cache:       cache,
		Hub:         hub,
		Referee:     referee.New(engine, referee.DefaultThreshold, logger),
		JWTMgr:      jwtMgr,
		Reporters:   reporters,
		Logger:      logger,
		CORSOrigins: "*",
	})

	server := httptest.NewServer(router)

	env.Server = server
	env.Pool = pool
	env.Store = store
	env.Engine = engine
	env.JWTMgr = jwtMgr
	env.Reporters = reporters
	env.Logger = logger

	t.Cleanup(func() {
		server.Close()
		env.CleanAll()
	})

	// Clean before test to ensure isolation
	env.CleanAll()

	return env
}
