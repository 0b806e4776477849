package repositories

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgresStore runs the store suite against pgvector in a container.
// Set TEST_INTEGRATION=1 to enable it.
func TestPostgresStore(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"pgvector/pgvector:pg17",
		tcpostgres.WithDatabase("vectorvault_test"),
		tcpostgres.WithUsername("vectorvault"),
		tcpostgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := ConnectDatabase(dsn, logger)
	if err != nil {
		t.Fatalf("ConnectDatabase: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	runStoreTests(t, func(t *testing.T) Store {
		if err := s.db.Exec("TRUNCATE chunks, files, users CASCADE").Error; err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}
