package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the public part of an account row. The password hash never leaves
// the users service.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// DirectoryUser is a user entry as shown in the "start a conversation" list.
type DirectoryUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Online   bool      `json:"online"`
}
