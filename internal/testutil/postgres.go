package testutil

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/pkg/db"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const PostgresEnv = "LEDGER_TEST_DATABASE_URL"

// NewPostgresDB opens a throwaway schema on the database named by
// LEDGER_TEST_DATABASE_URL, skipping the test when it is unset.
func NewPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(PostgresEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresEnv)
	}
	ctx := context.Background()
	schema := "ledger_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")

	admin, err := db.Open(ctx, db.DriverPostgres, dsn)
	require.NoError(t, err)
	require.NoError(t, admin.Exec("CREATE SCHEMA "+pq.QuoteIdentifier(schema)).Error)

	gdb, err := db.Open(ctx, db.DriverPostgres, withSearchPath(dsn, schema))
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(models.All()...))

	t.Cleanup(func() {
		_ = db.Close(gdb)
		_ = admin.Exec("DROP SCHEMA " + pq.QuoteIdentifier(schema) + " CASCADE").Error
		_ = db.Close(admin)
	})
	return gdb
}

func withSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}
