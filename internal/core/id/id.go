// Package id provides UUIDv7 generation for records owned by this service
// (accruals, audit entries, outbox notifications).
// References to ERP master data (companies, users, suppliers, receipts) stay int64.
package id

import (
	"github.com/google/uuid"
)

// ID is a type alias for UUID.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered UUID).
// Time ordering keeps audit rows naturally sorted by creation.
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// IsNil checks if ID is zero-value.
func IsNil(id ID) bool {
	return id == uuid.Nil
}
