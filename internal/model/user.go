package model

import "time"

// User is a parent account that can sign in. Children are FamilyMembers and
// never hold accounts of their own.
type User struct {
	ID           int64     `json:"id"`
	FamilyID     int64     `json:"family_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"-"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
