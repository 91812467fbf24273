package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/whisperline/whisperline-backend/internal/models"
	"github.com/whisperline/whisperline-backend/pkg/utils"
)

var (
	// ErrInvalidCredentials covers unknown users and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOrExpiredCode covers wrong, already-used, and lapsed codes.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	// ErrNotificationFailed means the OTP email could not be sent. The issued
	// code row stays valid for its window, so a retry can still honor it.
	ErrNotificationFailed = errors.New("failed to send one-time passcode")
)

// Mailer delivers a one-time passcode out of band.
type Mailer interface {
	SendCode(ctx context.Context, toEmail, code string) error
}

// OTPStore persists passcode rows.
type OTPStore interface {
	Insert(ctx context.Context, userID uuid.UUID, code string) error
	// LatestUnused returns the most recently created unused code for the
	// user, or nil when there is none.
	LatestUnused(ctx context.Context, userID uuid.UUID) (*models.OTPRequest, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
	PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// OTPService drives the passcode state machine: Created → Verified on a
// correct, fresh code, terminal failure otherwise. Verification always
// selects the newest unused code; older unused codes are never consulted and
// age out on their own window.
type OTPService struct {
	store  OTPStore
	mailer Mailer
	keys   *KeyRing
	now    func() time.Time
}

func NewOTPService(store OTPStore, mailer Mailer, keys *KeyRing) *OTPService {
	return &OTPService{store: store, mailer: mailer, keys: keys, now: time.Now}
}

// IssueCode creates a fresh passcode for user and emails it. Outstanding
// codes for the same user are left alone. A send failure surfaces as
// ErrNotificationFailed but does not revoke the issued row.
func (s *OTPService) IssueCode(ctx context.Context, user *models.User) error {
	code, err := utils.GenerateOTPCode()
	if err != nil {
		return err
	}
	if err := s.store.Insert(ctx, user.ID, code); err != nil {
		return err
	}
	if err := s.mailer.SendCode(ctx, user.Email, code); err != nil {
		log.Printf("OTP mail to user %s failed: %v", user.ID, err)
		return ErrNotificationFailed
	}
	return nil
}

// Verify checks code against user's newest unused passcode. On success the
// row is marked used and a fresh session key identity is issued for the
// user; the returned string is the new public key.
func (s *OTPService) Verify(ctx context.Context, user *models.User, code string) (string, error) {
	req, err := s.store.LatestUnused(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if req == nil || req.Code != code || req.ExpiredAt(s.now()) {
		return "", ErrInvalidOrExpiredCode
	}

	if err := s.store.MarkUsed(ctx, req.ID); err != nil {
		return "", err
	}

	return s.keys.Issue(user.Username)
}

// StartOTPCleanup starts a background goroutine that periodically purges
// expired passcode rows. Used rows inside their window are kept so a replayed
// code is still rejected as used rather than unknown.
func (s *OTPService) StartOTPCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	purge := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := s.store.PurgeExpired(ctx, s.now().Add(-models.OTPTTL))
		if err != nil {
			log.Printf("OTP cleanup failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("OTP cleanup removed %d expired codes", n)
		}
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		purge()
		for range ticker.C {
			purge()
		}
	}()
}
