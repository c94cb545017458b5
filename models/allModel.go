package models

import "github.com/printflowhq/printshop_backend/config"

// MigrateTable migrates the central-store tables. The local store keeps its
// own representation (redis keys / memory) and is not part of this schema.
func MigrateTable() {
	db := config.GetDB()
	if db == nil {
		return
	}
	db.AutoMigrate(
		&Order{},
		&Customer{},
		&Invoice{},
		&DocumentSequence{},
		&SyncRun{},
		&SyncRunError{},
	)
}
