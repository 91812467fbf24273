package services

import (
	"crypto/rand"
	"encoding/base64"
	"sync"

	"golang.org/x/crypto/curve25519"
)

// KeyRing holds one ephemeral X25519 key identity per logged-in user, plus
// the last public key each peer has advertised to them. Everything in here is
// volatile process memory: it must never be persisted, logged, or serialized.
// Logout removes a user's entry immediately.
type KeyRing struct {
	mu         sync.RWMutex
	identities map[string]*keyIdentity
}

type keyIdentity struct {
	private  []byte            // 32-byte X25519 scalar
	public   []byte            // 32-byte X25519 public key
	peerKeys map[string]string // peer username -> last advertised public key (opaque base64)
}

func NewKeyRing() *KeyRing {
	return &KeyRing{identities: make(map[string]*keyIdentity)}
}

// Issue generates a fresh X25519 key pair for username, replacing any
// previous identity and resetting the peer-key table. A login while another
// session is live simply overwrites; the old private key becomes unreachable.
func (k *KeyRing) Issue(username string) (string, error) {
	private := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(private); err != nil {
		return "", err
	}
	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return "", err
	}

	k.mu.Lock()
	k.identities[username] = &keyIdentity{
		private:  private,
		public:   public,
		peerKeys: make(map[string]string),
	}
	k.mu.Unlock()

	return base64.StdEncoding.EncodeToString(public), nil
}

// Revoke deletes username's key identity and peer-key table. No-op when the
// user has no identity.
func (k *KeyRing) Revoke(username string) {
	k.mu.Lock()
	delete(k.identities, username)
	k.mu.Unlock()
}

// HasIdentity reports whether username currently holds a key identity.
func (k *KeyRing) HasIdentity(username string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.identities[username]
	return ok
}

// PublicKey returns username's current public key, base64-encoded.
func (k *KeyRing) PublicKey(username string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	id, ok := k.identities[username]
	if !ok {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(id.public), true
}

// RecordPeerKey stores the most recent public key advertised by peer to
// username. Last write wins; no history is kept. Dropped silently when
// username is not logged in.
func (k *KeyRing) RecordPeerKey(username, peer, publicKey string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	id, ok := k.identities[username]
	if !ok {
		return
	}
	id.peerKeys[peer] = publicKey
}

// PeerKey returns the last public key peer advertised to username.
func (k *KeyRing) PeerKey(username, peer string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	id, ok := k.identities[username]
	if !ok {
		return "", false
	}
	key, ok := id.peerKeys[peer]
	return key, ok
}
