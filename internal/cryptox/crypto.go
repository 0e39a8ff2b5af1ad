// Package cryptox holds the device-identity primitives: device identifiers,
// Ed25519 keypairs and their hex encoding, plus the signatures used by the
// WAMP authentication methods.
package cryptox

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
)

// DeviceIDPrefix starts every generated device identifier.
const DeviceIDPrefix = "device-"

var ErrInvalidKey = errors.New("invalid key")

// KeyPair is a hex-encoded Ed25519 keypair. PrivateKey holds the 32-byte seed.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// Agent generates device identities. The zero value is ready to use.
type Agent struct{}

// DeviceID returns a new device identifier, see GenerateDeviceID.
func (Agent) DeviceID() string { return GenerateDeviceID() }

// KeyPair returns a fresh keypair, see GenerateKeyPair.
func (Agent) KeyPair() (KeyPair, error) { return GenerateKeyPair() }

// GenerateDeviceID combines a random component with a millisecond timestamp
// (UUIDv7). Uniqueness is best-effort within one client profile.
func GenerateDeviceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does.
		id = uuid.New()
	}
	return DeviceIDPrefix + id.String()
}

// GenerateKeyPair creates an Ed25519 signing keypair from crypto/rand.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return KeyPair{
		PrivateKey: ToHex(priv.Seed()),
		PublicKey:  ToHex(pub),
	}, nil
}

func ToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodePrivateKey parses a hex-encoded private key. Both the 32-byte seed and
// the 64-byte expanded form are accepted.
func DecodePrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("%w: private key has %d bytes", ErrInvalidKey, len(raw))
	}
}

// PublicKeyHex derives the hex-encoded public half of a hex private key.
func PublicKeyHex(privateKey string) (string, error) {
	priv, err := DecodePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	return ToHex(priv.Public().(ed25519.PublicKey)), nil
}

// Fingerprint returns the OpenSSH SHA256 fingerprint of a hex public key.
func Fingerprint(publicKey string) (string, error) {
	raw, err := hex.DecodeString(publicKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: public key", ErrInvalidKey)
	}
	pk, err := ssh.NewPublicKey(ed25519.PublicKey(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return ssh.FingerprintSHA256(pk), nil
}
