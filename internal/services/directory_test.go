package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalPairIsSymmetric(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	a1, b1 := canonicalPair(a, b)
	a2, b2 := canonicalPair(b, a)

	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}

func TestCanonicalPairOrdersDeterministically(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	first, second := canonicalPair(b, a)
	assert.Equal(t, a, first)
	assert.Equal(t, b, second)
}
