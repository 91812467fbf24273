package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRingIssueCreatesIdentity(t *testing.T) {
	kr := NewKeyRing()

	pub, err := kr.Issue("alice")
	require.NoError(t, err)
	assert.NotEmpty(t, pub)
	assert.True(t, kr.HasIdentity("alice"))

	got, ok := kr.PublicKey("alice")
	require.True(t, ok)
	assert.Equal(t, pub, got)
}

func TestKeyRingReissueInvalidatesPreviousIdentity(t *testing.T) {
	kr := NewKeyRing()

	first, err := kr.Issue("alice")
	require.NoError(t, err)

	kr.RecordPeerKey("alice", "bob", "bob-key-1")

	second, err := kr.Issue("alice")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "a new login must generate a fresh key pair")

	// The peer-key table is reset along with the identity.
	_, ok := kr.PeerKey("alice", "bob")
	assert.False(t, ok)
}

func TestKeyRingRevoke(t *testing.T) {
	kr := NewKeyRing()

	_, err := kr.Issue("alice")
	require.NoError(t, err)

	kr.Revoke("alice")
	assert.False(t, kr.HasIdentity("alice"))
	_, ok := kr.PublicKey("alice")
	assert.False(t, ok)

	// Revoking an absent identity is a no-op.
	kr.Revoke("alice")
	kr.Revoke("nobody")
}

func TestKeyRingRecordPeerKeyLastWriteWins(t *testing.T) {
	kr := NewKeyRing()

	_, err := kr.Issue("alice")
	require.NoError(t, err)

	kr.RecordPeerKey("alice", "bob", "bob-key-1")
	kr.RecordPeerKey("alice", "bob", "bob-key-2")

	key, ok := kr.PeerKey("alice", "bob")
	require.True(t, ok)
	assert.Equal(t, "bob-key-2", key)
}

func TestKeyRingRecordPeerKeyForLoggedOutUserIsDropped(t *testing.T) {
	kr := NewKeyRing()

	kr.RecordPeerKey("alice", "bob", "bob-key-1")
	_, ok := kr.PeerKey("alice", "bob")
	assert.False(t, ok)
}
