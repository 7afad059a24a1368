package sqlstore_test

import (
	"os"
	"strings"
	"testing"

	"bitbucket.org/avalia/dashboard_backend/config"
	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/docstore/sqlstore"
	"bitbucket.org/avalia/dashboard_backend/docstore/storetest"
	"github.com/stretchr/testify/require"
)

// Runs the shared store suite against the MySQL database named by the DB_* env vars.
// Every sub-test starts from an emptied documents table.
func TestStoreBehaviourMySQL(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 and DB_* to run integration tests (requires mysql)")
	}
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	require.NotNil(t, db)

	storetest.Run(t, func(t *testing.T) docstore.Store {
		s, err := sqlstore.Open(db)
		require.NoError(t, err)
		require.NoError(t, db.Exec("DELETE FROM documents").Error)
		return s
	})
}
