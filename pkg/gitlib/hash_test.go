package gitlib_test

import (
	"encoding/json"
	"testing"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
)

const mixedHex = "0123456789abcdef0123456789abcdef01234567"

var mixedHash = gitlib.Hash{
	0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef,
	0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef,
	0x01, 0x23, 0x45, 0x67,
}

func TestNewHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected gitlib.Hash
	}{
		{name: "full lowercase hex", input: mixedHex, expected: mixedHash},
		{name: "full uppercase hex", input: "0123456789ABCDEF0123456789ABCDEF01234567", expected: mixedHash},
		{name: "short string", input: "abcd", expected: gitlib.Hash{0xab, 0xcd}},
		{name: "empty string", input: "", expected: gitlib.Hash{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, gitlib.NewHash(tc.input))
		})
	}
}

func TestParseHash(t *testing.T) {
	t.Parallel()

	hash, err := gitlib.ParseHash(mixedHex)
	require.NoError(t, err)
	assert.Equal(t, mixedHash, hash)

	for _, bad := range []string{"", "abcd", mixedHex + "0", "z123456789abcdef0123456789abcdef01234567"} {
		_, err = gitlib.ParseHash(bad)
		require.ErrorIs(t, err, gitlib.ErrInvalidHash, bad)
	}
}

func TestHashString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0000000000000000000000000000000000000000", gitlib.Hash{}.String())
	assert.Equal(t, mixedHex, mixedHash.String())
	assert.Equal(t, gitlib.EmptyTreeHex, gitlib.EmptyTreeHash().String())
}

func TestHashIsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, gitlib.Hash{}.IsZero())
	assert.False(t, gitlib.Hash{0x01}.IsZero())
	assert.False(t, mixedHash.IsZero())
}

func TestHashOidRoundTrip(t *testing.T) {
	t.Parallel()

	original := new(git2go.Oid)
	copy(original[:], mixedHash[:])

	hash := gitlib.HashFromOid(original)
	assert.Equal(t, mixedHash, hash)
	assert.Equal(t, original[:], hash.ToOid()[:])
	assert.True(t, gitlib.HashFromOid(nil).IsZero())
}

func TestHashJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(map[string]gitlib.Hash{"id": mixedHash})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+mixedHex+`"}`, string(data))

	var decoded map[string]gitlib.Hash

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, mixedHash, decoded["id"])

	require.Error(t, json.Unmarshal([]byte(`{"id":"nope"}`), &decoded))
}
