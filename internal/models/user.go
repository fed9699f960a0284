package models

// Role represents a participant role in a live session.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r may join a live session.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}
