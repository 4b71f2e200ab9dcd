package repository

import "github.com/imyashkale/mcpbridge/internal/database"

// Re-export errors from database package so callers never import it directly
var (
	ErrNotFound = database.ErrNotFound
	ErrConflict = database.ErrConflict
)
