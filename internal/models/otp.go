package models

import (
	"time"

	"github.com/google/uuid"
)

// OTPTTL is how long a passcode stays valid after it is issued.
const OTPTTL = 5 * time.Minute

// OTPRequest is a one-time passcode row. Codes are single-use: verification
// flips Used permanently. Issuing a new code does not invalidate older unused
// ones; verification only ever looks at the newest.
type OTPRequest struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	Used      bool      `json:"used"`
}

// ExpiredAt reports whether the code's window has lapsed as of now.
func (o *OTPRequest) ExpiredAt(now time.Time) bool {
	return now.After(o.CreatedAt.Add(OTPTTL))
}
