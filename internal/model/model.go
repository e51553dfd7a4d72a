package model

import "time"

const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleStudent    = "student"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleInstructor, RoleStudent:
		return true
	default:
		return false
	}
}

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Discipline   *string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Author is the subset of a user embedded in post payloads.
type Author struct {
	ID    string
	Name  string
	Email string
}

type Post struct {
	ID        string
	Title     string
	Content   string
	AuthorID  string
	Author    *Author
	CreatedAt time.Time
	UpdatedAt time.Time
}
