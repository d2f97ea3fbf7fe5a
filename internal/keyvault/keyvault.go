// Package keyvault stores user-supplied provider credentials encrypted at
// rest with AES-256-GCM. Plaintext keys exist only in memory for the
// duration of a call and are never written to logs or storage.
package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/scrypt"

	"github.com/chatchonk/automodel/internal/costgate"
	"github.com/chatchonk/automodel/internal/providers"
)

// scrypt parameters for master key derivation.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keyLen  = 32
	saltLen = 16
)

var (
	// ErrLocked is returned when the vault has no derived key in memory.
	ErrLocked = errors.New("keyvault locked")
	// ErrNotFound is returned when no credential is stored for the user
	// and provider pair.
	ErrNotFound = errors.New("credential not found")
)

// Vault holds encrypted user credentials keyed by (user, provider). The
// derived key lives in memory only and is zeroed on Lock.
type Vault struct {
	mu     sync.RWMutex
	locked bool
	salt   []byte
	key    []byte
	values map[string][]byte
}

// New creates a locked vault with a fresh random salt.
func New() (*Vault, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("keyvault: generating salt: %w", err)
	}
	return &Vault{
		locked: true,
		salt:   salt,
		values: make(map[string][]byte),
	}, nil
}

// NewWithSalt restores a vault over a previously exported salt so imported
// ciphertexts remain decryptable.
func NewWithSalt(salt []byte) (*Vault, error) {
	if len(salt) != saltLen {
		return nil, fmt.Errorf("keyvault: salt must be %d bytes", saltLen)
	}
	return &Vault{
		locked: true,
		salt:   append([]byte(nil), salt...),
		values: make(map[string][]byte),
	}, nil
}

// Unlock derives the encryption key from the master passphrase.
func (v *Vault) Unlock(master []byte) error {
	if len(master) < 8 {
		return errors.New("keyvault: passphrase too short")
	}
	key, err := scrypt.Key(master, v.salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return fmt.Errorf("keyvault: deriving key: %w", err)
	}
	v.mu.Lock()
	v.key = key
	v.locked = false
	v.mu.Unlock()
	return nil
}

// Lock zeroes the derived key. Stored ciphertexts survive.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.key {
		v.key[i] = 0
	}
	v.key = nil
	v.locked = true
}

// Locked reports whether the vault can currently decrypt.
func (v *Vault) Locked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.locked
}

// Salt returns a copy of the derivation salt, for persistence.
func (v *Vault) Salt() []byte {
	return append([]byte(nil), v.salt...)
}

func credentialName(userID, providerID string) string {
	return "user:" + userID + ":provider:" + providerID
}

// StoreUserKey validates and encrypts one user's credential for a provider.
// The plaintext is not retained.
func (v *Vault) StoreUserKey(userID, providerID, apiKey string) error {
	if !costgate.ValidAPIKeyFormat(apiKey) {
		return providers.E(providers.KindValidation,
			"api key for provider %s has invalid format", providerID)
	}
	ciphertext, err := v.encrypt([]byte(apiKey))
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.values[credentialName(userID, providerID)] = ciphertext
	v.mu.Unlock()
	return nil
}

// UserKey decrypts and returns one stored credential.
func (v *Vault) UserKey(userID, providerID string) (string, error) {
	v.mu.RLock()
	ciphertext, ok := v.values[credentialName(userID, providerID)]
	v.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	plaintext, err := v.decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DeleteUserKey removes one stored credential.
func (v *Vault) DeleteUserKey(userID, providerID string) {
	v.mu.Lock()
	delete(v.values, credentialName(userID, providerID))
	v.mu.Unlock()
}

// HasUserKey reports whether a credential is stored without decrypting it.
func (v *Vault) HasUserKey(userID, providerID string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.values[credentialName(userID, providerID)]
	return ok
}

// Export returns the encrypted entries, base64 encoded, for persistence.
// Exported values are ciphertext; no unlock is required.
func (v *Vault) Export() map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]string, len(v.values))
	for k, val := range v.values {
		out[k] = base64.StdEncoding.EncodeToString(val)
	}
	return out
}

// Import loads previously exported entries.
func (v *Vault) Import(data map[string]string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, enc := range data {
		decoded, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return fmt.Errorf("keyvault: decoding entry %s: %w", k, err)
		}
		v.values[k] = decoded
	}
	return nil
}

func (v *Vault) encrypt(plaintext []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.locked {
		return nil, ErrLocked
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *Vault) decrypt(ciphertext []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.locked {
		return nil, ErrLocked
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("keyvault: ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
