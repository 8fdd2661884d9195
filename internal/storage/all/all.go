// Package all registers every storage backend. Import it for side effects.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "tablemigrate/internal/storage/memory"
	_ "tablemigrate/internal/storage/mongo"
	_ "tablemigrate/internal/storage/mssql"
	_ "tablemigrate/internal/storage/postgres"
	_ "tablemigrate/internal/storage/sqlite"
)
