package cryptox

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeviceID_PrefixAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := GenerateDeviceID()
		require.True(t, strings.HasPrefix(id, DeviceIDPrefix), id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate device id %s", id)
		seen[id] = struct{}{}
	}
}

func TestGenerateKeyPair_HexHalvesMatch(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	priv, err := hex.DecodeString(kp.PrivateKey)
	require.NoError(t, err)
	require.Len(t, priv, ed25519.SeedSize)

	pub, err := hex.DecodeString(kp.PublicKey)
	require.NoError(t, err)
	require.Len(t, pub, ed25519.PublicKeySize)

	derived, err := PublicKeyHex(kp.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, kp.PublicKey, derived)

	other, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NotEqual(t, kp.PrivateKey, other.PrivateKey)
}

func TestDecodePrivateKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	fromSeed, err := DecodePrivateKey(kp.PrivateKey)
	require.NoError(t, err)

	full, err := DecodePrivateKey(ToHex(fromSeed))
	require.NoError(t, err)
	require.Equal(t, fromSeed, full)

	_, err = DecodePrivateKey("zz")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = DecodePrivateKey("abcd")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestFingerprint(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	fp, err := Fingerprint(kp.PublicKey)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fp, "SHA256:"), fp)

	_, err = Fingerprint("00")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestAgent(t *testing.T) {
	var a Agent
	require.True(t, strings.HasPrefix(a.DeviceID(), DeviceIDPrefix))
	kp, err := a.KeyPair()
	require.NoError(t, err)
	require.NotEmpty(t, kp.PublicKey)
}
