package models

import "gorm.io/gorm"

// Migrate creates/updates the engine's tables. Called from main() once the
// database connection is up, and from cmd/seed-admin.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&PurchasingAccount{},
		&LedgerTransaction{},
		&ReconciliationSession{},
		&CommingledItem{},
	)
}
