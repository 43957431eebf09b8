package types

import (
	"strings"
	"time"
)

// Role is the coarse authorization level carried in a session.
type Role string

const (
	RoleUser   Role = "USER"
	RoleSeller Role = "SELLER"
	RoleAdmin  Role = "ADMIN"
)

// ParseRole normalizes raw and reports whether it names a known role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// UserStatus is the account lifecycle state managed by admins.
type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusInactive UserStatus = "INACTIVE"
	UserStatusDisabled UserStatus = "DISABLED"
)

// ParseUserStatus normalizes raw and reports whether it names a known status.
func ParseUserStatus(raw string) (UserStatus, bool) {
	status := UserStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case UserStatusActive, UserStatusInactive, UserStatusDisabled:
		return status, true
	}
	return status, false
}

// User represents a storefront account.
// It contains identity, role, contact details, and audit metadata.
type User struct {
	// ID is the unique identifier of the user (UUID).
	ID string `json:"id" db:"id"`

	// FirstName is the user's given name. It doubles as the display name
	// carried in the session.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"last_name" db:"last_name"`

	// Email is the unique, lower-cased login identifier.
	Email string `json:"email" db:"email"`

	// Phone is an optional contact number.
	Phone string `json:"phone,omitempty" db:"phone"`

	// Avatar is the public URL of the user's avatar image, if any.
	Avatar string `json:"avatar,omitempty" db:"avatar"`

	// Status is the account lifecycle state. Only ACTIVE users may log in.
	Status UserStatus `json:"status" db:"status"`

	// Role indicates the user's authorization level within the storefront.
	Role Role `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Address is the optional postal address of the user.
	Address Address `json:"address" db:"address"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Address is a postal address stored alongside a user.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}
