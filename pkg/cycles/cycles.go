// Package cycles is the public entry point of the cycle accounting module.
// It exposes the release version and the storage factory while keeping
// the SQL implementation internal.
package cycles

import (
	"github.com/mesh-intelligence/cycles/internal/store"
	"github.com/mesh-intelligence/cycles/pkg/types"
)

// Version is the release version reported by the CLI.
const Version = "0.3.0"

// NewStore creates a new storage backend. The backend is not attached;
// call Attach with a Config to initialize.
//
// Example:
//
//	st := cycles.NewStore()
//	err := st.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".cycles-db",
//	})
//	defer st.Detach()
func NewStore() types.Store {
	return store.NewBackend()
}
