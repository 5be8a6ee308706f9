package postgres

import "catalog/internal/storage"

func init() {
	// registers the postgres backend factory
	storage.Register("postgres", NewRepository)
}
