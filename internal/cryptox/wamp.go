package cryptox

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Defaults applied by WAMP-CRA when the router sends a salt without
// iterations or key length.
const (
	CRADefaultIterations = 1000
	CRADefaultKeyLen     = 32
)

// SignCryptosignChallenge signs the hex challenge of a cryptosign CHALLENGE.
// The result is the hex signature followed by the hex challenge, which is
// the form routers expect in AUTHENTICATE.
func SignCryptosignChallenge(priv ed25519.PrivateKey, challenge string) (string, error) {
	msg, err := hex.DecodeString(challenge)
	if err != nil {
		return "", fmt.Errorf("decode challenge: %w", err)
	}
	sig := ed25519.Sign(priv, msg)
	return hex.EncodeToString(sig) + challenge, nil
}

// VerifyCryptosignSignature checks an AUTHENTICATE signature produced by
// SignCryptosignChallenge against the public key and the issued challenge.
func VerifyCryptosignSignature(pub ed25519.PublicKey, challenge, signature string) bool {
	raw, err := hex.DecodeString(signature)
	if err != nil || len(raw) < ed25519.SignatureSize {
		return false
	}
	msg, err := hex.DecodeString(challenge)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, msg, raw[:ed25519.SignatureSize])
}

// DeriveCRAKey returns the key used to sign WAMP-CRA challenges. Without a
// salt the secret is used as is; with a salt the secret is stretched with
// PBKDF2-SHA256 and base64-encoded.
func DeriveCRAKey(secret, salt string, iterations, keyLen int) []byte {
	if salt == "" {
		return []byte(secret)
	}
	if iterations <= 0 {
		iterations = CRADefaultIterations
	}
	if keyLen <= 0 {
		keyLen = CRADefaultKeyLen
	}
	dk := pbkdf2.Key([]byte(secret), []byte(salt), iterations, keyLen, sha256.New)
	return []byte(base64.StdEncoding.EncodeToString(dk))
}

// SignCRAChallenge computes base64(HMAC-SHA256(key, challenge)).
func SignCRAChallenge(key []byte, challenge string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(challenge))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
