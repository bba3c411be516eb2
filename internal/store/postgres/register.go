package postgres

import "dataloft/internal/store"

func init() {
	// registers the Postgres backend factory
	store.Register("postgres", New)
}
