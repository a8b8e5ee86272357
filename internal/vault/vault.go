// Package vault encrypts mailbox secrets at rest with a key derived
// from a process-wide passphrase.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// keyIterations is the PBKDF2 iteration count. High on purpose: a
	// leaked envelope plus a guessed passphrase must stay expensive to
	// brute-force.
	keyIterations = 150_000

	keyLen   = 32
	saltLen  = 16
	nonceLen = 12
)

// VaultError describes a failed vault operation.
type VaultError struct {
	Op     string // "encrypt" or "decrypt"
	Reason string
}

func (e *VaultError) Error() string {
	return "vault: " + e.Op + ": " + e.Reason
}

// Vault performs authenticated symmetric encryption of secret strings.
// Every encryption draws a fresh salt and nonce, so encrypting the
// same plaintext twice yields different envelopes.
type Vault struct {
	passphrase string
}

// New creates a Vault from the given passphrase. The passphrase is
// injected configuration; it is trimmed and must be non-empty.
func New(passphrase string) (*Vault, error) {
	clean := strings.TrimSpace(passphrase)
	if clean == "" {
		return nil, &VaultError{Op: "new", Reason: "passphrase must be a non-empty string"}
	}
	return &Vault{passphrase: clean}, nil
}

// deriveKey stretches the passphrase with PBKDF2-SHA256 under the
// given salt.
func (v *Vault) deriveKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(v.passphrase), salt, keyIterations, keyLen, sha256.New)
}

// Encrypt seals plaintext with AES-256-GCM and returns an envelope of
// the form salt:nonce:tag:cipher, each part base64-encoded.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", &VaultError{Op: "encrypt", Reason: "plaintext must be a non-empty string"}
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", &VaultError{Op: "encrypt", Reason: "generating salt: " + err.Error()}
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", &VaultError{Op: "encrypt", Reason: "generating nonce: " + err.Error()}
	}

	aead, err := newAEAD(v.deriveKey(salt))
	if err != nil {
		return "", &VaultError{Op: "encrypt", Reason: err.Error()}
	}

	// Seal appends the authentication tag to the ciphertext; the
	// envelope keeps them as separate parts.
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - aead.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	enc := base64.StdEncoding.EncodeToString
	parts := []string{enc(salt), enc(nonce), enc(tag), enc(ciphertext)}
	return strings.Join(parts, ":"), nil
}

// Decrypt opens an envelope produced by Encrypt. It fails with a
// VaultError when the envelope does not split into exactly four parts,
// when any part is not valid base64, or when tag verification fails
// (tampered data or wrong passphrase).
func (v *Vault) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 4 {
		return "", &VaultError{Op: "decrypt", Reason: "invalid envelope format, expected salt:nonce:tag:cipher"}
	}

	raw := make([][]byte, 4)
	for i, p := range parts {
		b, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			return "", &VaultError{Op: "decrypt", Reason: "invalid base64 in envelope"}
		}
		raw[i] = b
	}
	salt, nonce, tag, ciphertext := raw[0], raw[1], raw[2], raw[3]

	aead, err := newAEAD(v.deriveKey(salt))
	if err != nil {
		return "", &VaultError{Op: "decrypt", Reason: err.Error()}
	}
	if len(nonce) != aead.NonceSize() {
		return "", &VaultError{Op: "decrypt", Reason: "invalid nonce length"}
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", &VaultError{Op: "decrypt", Reason: "authentication failed"}
	}

	return string(plaintext), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
