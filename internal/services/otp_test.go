package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperline/whisperline-backend/internal/models"
)

type memOTPStore struct {
	mu   sync.Mutex
	rows []*models.OTPRequest
}

func (s *memOTPStore) Insert(ctx context.Context, userID uuid.UUID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, &models.OTPRequest{
		ID:        uuid.New(),
		UserID:    userID,
		Code:      code,
		CreatedAt: time.Now().Add(time.Duration(len(s.rows)) * time.Millisecond),
	})
	return nil
}

func (s *memOTPStore) insertAt(userID uuid.UUID, code string, createdAt time.Time) *models.OTPRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := &models.OTPRequest{ID: uuid.New(), UserID: userID, Code: code, CreatedAt: createdAt}
	s.rows = append(s.rows, row)
	return row
}

func (s *memOTPStore) LatestUnused(ctx context.Context, userID uuid.UUID) (*models.OTPRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*models.OTPRequest
	for _, row := range s.rows {
		if row.UserID == userID && !row.Used {
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (s *memOTPStore) MarkUsed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ID == id {
			row.Used = true
		}
	}
	return nil
}

func (s *memOTPStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*models.OTPRequest
	var purged int64
	for _, row := range s.rows {
		if row.CreatedAt.Before(olderThan) {
			purged++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return purged, nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	codes []string
}

func (m *fakeMailer) SendCode(ctx context.Context, toEmail, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, toEmail)
	m.codes = append(m.codes, code)
	return nil
}

func newOTPFixture() (*OTPService, *memOTPStore, *fakeMailer, *KeyRing, *models.User) {
	store := &memOTPStore{}
	mailer := &fakeMailer{}
	keys := NewKeyRing()
	svc := NewOTPService(store, mailer, keys)
	user := &models.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com"}
	return svc, store, mailer, keys, user
}

func TestOTPIssueAndVerify(t *testing.T) {
	svc, store, mailer, keys, alice := newOTPFixture()
	ctx := context.Background()

	require.NoError(t, svc.IssueCode(ctx, alice))
	require.Len(t, mailer.codes, 1)
	code := mailer.codes[0]
	assert.Len(t, code, 6)

	pub, err := svc.Verify(ctx, alice, code)
	require.NoError(t, err)
	assert.NotEmpty(t, pub)
	assert.True(t, keys.HasIdentity("alice"))
	assert.True(t, store.rows[0].Used)
}

func TestOTPVerifyWithinWindowThenReuseRejected(t *testing.T) {
	svc, store, _, _, alice := newOTPFixture()
	ctx := context.Background()

	t0 := time.Now()
	store.insertAt(alice.ID, "123456", t0)

	// t0+4min: still inside the 5-minute window.
	svc.now = func() time.Time { return t0.Add(4 * time.Minute) }
	_, err := svc.Verify(ctx, alice, "123456")
	require.NoError(t, err)

	// Same digits again: the code is used, even though the window is open.
	_, err = svc.Verify(ctx, alice, "123456")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestOTPVerifyRejectsExpiredCode(t *testing.T) {
	svc, store, _, keys, alice := newOTPFixture()
	ctx := context.Background()

	t0 := time.Now()
	store.insertAt(alice.ID, "123456", t0)

	svc.now = func() time.Time { return t0.Add(5*time.Minute + time.Second) }
	_, err := svc.Verify(ctx, alice, "123456")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	assert.False(t, keys.HasIdentity("alice"))
	assert.False(t, store.rows[0].Used, "a failed verification leaves the code unused")
}

func TestOTPVerifyRejectsWrongCode(t *testing.T) {
	svc, store, _, _, alice := newOTPFixture()
	ctx := context.Background()

	store.insertAt(alice.ID, "123456", time.Now())
	_, err := svc.Verify(ctx, alice, "654321")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestOTPVerifyRejectsWhenNoCodeIssued(t *testing.T) {
	svc, _, _, _, alice := newOTPFixture()
	_, err := svc.Verify(context.Background(), alice, "123456")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestOTPVerifySelectsNewestUnusedCode(t *testing.T) {
	svc, store, _, _, alice := newOTPFixture()
	ctx := context.Background()

	t0 := time.Now()
	store.insertAt(alice.ID, "111111", t0)
	store.insertAt(alice.ID, "222222", t0.Add(time.Second))

	svc.now = func() time.Time { return t0.Add(2 * time.Second) }

	// The older code no longer matches; only the newest is consulted.
	_, err := svc.Verify(ctx, alice, "111111")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredCode)

	_, err = svc.Verify(ctx, alice, "222222")
	assert.NoError(t, err)
}

func TestOTPMailFailureKeepsIssuedCode(t *testing.T) {
	svc, store, mailer, _, alice := newOTPFixture()
	ctx := context.Background()

	mailer.fail = true
	err := svc.IssueCode(ctx, alice)
	assert.ErrorIs(t, err, ErrNotificationFailed)

	// The row was issued before the send and stays valid for its window.
	require.Len(t, store.rows, 1)
	assert.False(t, store.rows[0].Used)

	_, err = svc.Verify(ctx, alice, store.rows[0].Code)
	assert.NoError(t, err)
}

func TestOTPVerifyIssuesFreshKeyIdentity(t *testing.T) {
	svc, store, _, keys, alice := newOTPFixture()
	ctx := context.Background()

	t0 := time.Now()
	store.insertAt(alice.ID, "111111", t0)
	first, err := svc.Verify(ctx, alice, "111111")
	require.NoError(t, err)

	store.insertAt(alice.ID, "222222", t0.Add(time.Second))
	second, err := svc.Verify(ctx, alice, "222222")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "each verified login gets a fresh key pair")
	assert.True(t, keys.HasIdentity("alice"))
}

func TestOTPPurgeExpiredKeepsFreshCodes(t *testing.T) {
	_, store, _, _, alice := newOTPFixture()
	ctx := context.Background()

	t0 := time.Now()
	store.insertAt(alice.ID, "111111", t0.Add(-10*time.Minute))
	store.insertAt(alice.ID, "222222", t0)

	n, err := store.PurgeExpired(ctx, t0.Add(-models.OTPTTL))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, store.rows, 1)
	assert.Equal(t, "222222", store.rows[0].Code)
}
