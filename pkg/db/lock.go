package db

import "gorm.io/gorm"

// RowLock returns the row-locking clause for the active dialect.
// SQLite serializes writers itself and rejects FOR UPDATE syntax.
func RowLock(conn *gorm.DB) string {
	if conn.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
