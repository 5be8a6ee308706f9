// Package all registers every storage backend with the storage registry.
package all

import (
	_ "catalog/internal/storage/mssql"
	_ "catalog/internal/storage/postgres"
	_ "catalog/internal/storage/sqlite"
)
