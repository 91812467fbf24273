package services

import (
	"errors"

	"github.com/whisperline/whisperline-backend/internal/models"
)

var (
	// ErrMissingRecipient is returned when a key exchange names no peer.
	ErrMissingRecipient = errors.New("key exchange: recipient is required")
	// ErrMissingPublicKey is returned when a key exchange carries no key.
	ErrMissingPublicKey = errors.New("key exchange: public key is required")
)

// KeyExchangeRelay forwards ephemeral public keys between peers. It keeps no
// state beyond updating the recipient's peer-key table; if the recipient is
// offline the key is dropped, not queued — the initiating peer re-sends when
// it next observes the recipient's presence.
type KeyExchangeRelay struct {
	keys     *KeyRing
	presence *PresenceRouter
}

func NewKeyExchangeRelay(keys *KeyRing, presence *PresenceRouter) *KeyExchangeRelay {
	return &KeyExchangeRelay{keys: keys, presence: presence}
}

// RelayPublicKey delivers from's public key to every connection bound to
// to's room. Returns whether the key reached at least one connection.
func (r *KeyExchangeRelay) RelayPublicKey(from, to, publicKey string) (bool, error) {
	if to == "" {
		return false, ErrMissingRecipient
	}
	if publicKey == "" {
		return false, ErrMissingPublicKey
	}

	r.keys.RecordPeerKey(to, from, publicKey)

	delivered := r.presence.Deliver(to, models.PeerKeyEvent{
		Type:   "peer_key",
		From:   from,
		PubKey: publicKey,
	})
	return delivered, nil
}
