package entities

import (
	"strings"
	"time"
)

const (
	maxNameLength    = 256
	maxAddressLength = 256
)

// Entity represents a real-world organization or individual
// Example: "Pancake Labs" owning several on-chain accounts
type Entity struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account represents an on-chain address, optionally owned by an entity
type Account struct {
	ID        int64
	Address   string
	EntityID  *int64 // nil when the account has no known owner
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy reports whether the account belongs to the given entity
func (a *Account) OwnedBy(entityID int64) bool {
	return a.EntityID != nil && *a.EntityID == entityID
}

// CascadeSummary counts the rows removed by a cascading delete
type CascadeSummary struct {
	Accounts   int64
	Projects   int64
	Attributes int64
}

// NormalizeName trims a display name and checks its length
func NormalizeName(field string, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", NewValidationError(field, "must not be empty")
	}
	if len(name) > maxNameLength {
		return "", NewValidationError(field, "must be at most %d bytes", maxNameLength)
	}
	return name, nil
}

// NormalizeAddress trims an on-chain address and checks it is usable as a lookup key
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", NewValidationError("address", "must not be empty")
	}
	if len(address) > maxAddressLength {
		return "", NewValidationError("address", "must be at most %d bytes", maxAddressLength)
	}
	if strings.ContainsAny(address, " \t\r\n") {
		return "", NewValidationError("address", "must not contain whitespace")
	}
	return address, nil
}
