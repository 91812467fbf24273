package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/whisperline/whisperline-backend/internal/database"
	"github.com/whisperline/whisperline-backend/internal/models"
)

// PostgresOTPStore implements OTPStore on the otp_requests table.
type PostgresOTPStore struct{}

func NewPostgresOTPStore() *PostgresOTPStore {
	return &PostgresOTPStore{}
}

func (s *PostgresOTPStore) Insert(ctx context.Context, userID uuid.UUID, code string) error {
	_, err := database.PostgresDB.ExecContext(ctx, `
		INSERT INTO otp_requests (user_id, code) VALUES ($1, $2)
	`, userID, code)
	return err
}

func (s *PostgresOTPStore) LatestUnused(ctx context.Context, userID uuid.UUID) (*models.OTPRequest, error) {
	var req models.OTPRequest
	err := database.PostgresDB.QueryRowContext(ctx, `
		SELECT id, user_id, code, created_at, used
		FROM otp_requests
		WHERE user_id = $1 AND used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`, userID).Scan(&req.ID, &req.UserID, &req.Code, &req.CreatedAt, &req.Used)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (s *PostgresOTPStore) MarkUsed(ctx context.Context, id uuid.UUID) error {
	_, err := database.PostgresDB.ExecContext(ctx, `
		UPDATE otp_requests SET used = TRUE WHERE id = $1
	`, id)
	return err
}

func (s *PostgresOTPStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := database.PostgresDB.ExecContext(ctx, `
		DELETE FROM otp_requests WHERE created_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
