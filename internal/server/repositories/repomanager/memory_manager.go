package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/credport/internal/dbx"
	"github.com/dmitrijs2005/credport/internal/server/repositories/users"
)

// MemoryRepositoryManager serves a single in-memory users repository
// regardless of the DBTX handed in; there is nothing to migrate.
type MemoryRepositoryManager struct {
	users *users.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{users: users.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.users }
