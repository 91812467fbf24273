package services

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/whisperline/whisperline-backend/internal/database"
	"github.com/whisperline/whisperline-backend/internal/models"
	"github.com/whisperline/whisperline-backend/pkg/utils"
)

// FindUserByUsername retrieves an active user by username (case-insensitive).
// Returns nil when not found.
func FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := database.PostgresDB.QueryRowContext(ctx, `
		SELECT id, username, email, created_at, is_active
		FROM users WHERE LOWER(username) = LOWER($1) AND is_active = TRUE
	`, username).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// FindUserByEmail retrieves an active user by email. Returns nil when not found.
func FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := database.PostgresDB.QueryRowContext(ctx, `
		SELECT id, username, email, created_at, is_active
		FROM users WHERE LOWER(email) = LOWER($1) AND is_active = TRUE
	`, email).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByID retrieves an active user by id. Returns nil when not found.
func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := database.PostgresDB.QueryRowContext(ctx, `
		SELECT id, username, email, created_at, is_active
		FROM users WHERE id = $1 AND is_active = TRUE
	`, id).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// CreateUser hashes the password with Argon2id and inserts the account row.
func CreateUser(ctx context.Context, username, email, password string) (*models.User, error) {
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	var u models.User
	err = database.PostgresDB.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, username, email, created_at, is_active
	`, utils.NormalizeUsername(username), email, hashed).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.IsActive)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// VerifyUserPassword checks username/password and returns the user on
// success. Unknown users and wrong passwords both map to
// ErrInvalidCredentials so the response does not leak which one it was.
func VerifyUserPassword(ctx context.Context, username, password string) (*models.User, error) {
	var u models.User
	var hash string
	err := database.PostgresDB.QueryRowContext(ctx, `
		SELECT id, username, email, created_at, is_active, password_hash
		FROM users WHERE LOWER(username) = LOWER($1) AND is_active = TRUE
	`, username).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.IsActive, &hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	valid, err := utils.VerifyPassword(password, hash)
	if err != nil || !valid {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// ListUsers returns every active user except excludeID, annotated with the
// Redis presence marker, for the "start a conversation" list.
func ListUsers(ctx context.Context, excludeID uuid.UUID) ([]models.DirectoryUser, error) {
	rows, err := database.PostgresDB.QueryContext(ctx, `
		SELECT id, username FROM users
		WHERE is_active = TRUE AND id <> $1
		ORDER BY username ASC
	`, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DirectoryUser
	for rows.Next() {
		var u models.DirectoryUser
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		u.Online = IsUserOnline(ctx, u.Username)
		out = append(out, u)
	}
	return out, rows.Err()
}
