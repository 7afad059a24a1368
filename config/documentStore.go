package config

import (
	"fmt"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/docstore/jsonstore"
	"bitbucket.org/avalia/dashboard_backend/docstore/memstore"
	"bitbucket.org/avalia/dashboard_backend/docstore/sqlstore"
)

// OpenDocumentStore builds the backend named by STORE_BACKEND. The mysql backend
// connects (with retry) first. Construct once per process and share it.
func OpenDocumentStore() (docstore.Store, error) {
	switch backend := StoreBackend(); backend {
	case StoreBackendMemory:
		return memstore.New(), nil
	case StoreBackendMySQL:
		if GetDB() == nil {
			ConnectDatabaseWithRetry()
		}
		store, err := sqlstore.Open(GetDB(), sqlstore.WithMaxAttempts(TransactionMaxAttempts()))
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", backend, err)
		}
		return store, nil
	default:
		store, err := jsonstore.Open(JSONStorePath())
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", backend, err)
		}
		return store, nil
	}
}
