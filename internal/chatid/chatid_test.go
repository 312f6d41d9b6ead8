package chatid

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalIsOrderIndependent(t *testing.T) {
	pairs := [][2]string{
		{"u1", "u2"},
		{"alice", "bob"},
		{"Z", "a"},
		{"same-prefix", "same-prefix-2"},
	}

	for _, pair := range pairs {
		ab, err := Canonical(pair[0], pair[1])
		require.NoError(t, err)
		ba, err := Canonical(pair[1], pair[0])
		require.NoError(t, err)
		require.Equal(t, ab, ba)
		require.Len(t, ab, 64)
	}
}

func TestCanonicalMatchesSortedSHA256(t *testing.T) {
	sum := sha256.Sum256([]byte("u1|u2"))
	expected := hex.EncodeToString(sum[:])

	id, err := Canonical("u2", "u1")
	require.NoError(t, err)
	require.Equal(t, expected, id)
}

func TestCanonicalDistinguishesPairs(t *testing.T) {
	first, err := Canonical("u1", "u2")
	require.NoError(t, err)
	second, err := Canonical("u1", "u3")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestCanonicalRejectsEmptyIDs(t *testing.T) {
	_, err := Canonical("", "u2")
	require.ErrorIs(t, err, ErrEmptyUserID)

	_, err = Canonical("u1", "   ")
	require.ErrorIs(t, err, ErrEmptyUserID)
}

func TestForPartnersSkipsBlankIDs(t *testing.T) {
	ids := ForPartners("u1", []string{"u2", "", "u3"})
	require.Len(t, ids, 2)

	expected, err := Canonical("u3", "u1")
	require.NoError(t, err)
	require.Equal(t, expected, ids[1])
}
