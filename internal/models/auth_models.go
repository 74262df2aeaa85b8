package models

import "time"

const (
	RoleCustomer = "CUSTOMER"
	RoleStaff    = "STAFF"
	RoleAdmin    = "ADMIN"
)

// WalkInPhone identifies the shared account POS orders use when the customer gives no number.
const WalkInPhone = "0000000000"

// User is a customer or a staff member. Only staff have a username and password.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name" db:"name"`
	Phone        string    `json:"phone" db:"phone"`
	Username     *string   `json:"username,omitempty" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	FCMToken     *string   `json:"-" db:"fcm_token"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsStaff reports whether the user may use the admin surface.
func (u *User) IsStaff() bool {
	return u.Role == RoleStaff || u.Role == RoleAdmin
}

// IsWalkIn is true for the shared POS account, which never receives messages.
func (u *User) IsWalkIn() bool {
	return u.Phone == WalkInPhone
}
