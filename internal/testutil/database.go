package testutil

import (
	"refile-go/internal/database"
)

// NewTestMetaArea creates a new in-memory metadata area.
func NewTestMetaArea() *database.MemoryMetaArea {
	return database.NewMemoryMetaArea()
}
