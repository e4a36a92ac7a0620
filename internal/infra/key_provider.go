package infra

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

const (
	keyFileName = "store.key"
	keySize     = 32 // 256-bit SQLCipher key
)

// FileKeyProvider implements domain.KeyProvider with a base64 key file
// readable only by its owner.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{
		keyPath: filepath.Join(dataDir, keyFileName),
	}
}

// GetKey reads the database key.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(err, apperrors.KindNotFound, "key file missing")
		}
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "failed to read key file")
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindMalformed, "failed to decode key")
	}
	if len(key) != keySize {
		return nil, apperrors.Errorf(apperrors.KindMalformed, "invalid key size: got %d, want %d", len(key), keySize)
	}
	return key, nil
}

// StoreKey writes the key with 0600 permissions, creating the directory if needed.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return apperrors.Errorf(apperrors.KindValidation, "invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return apperrors.Wrap(err, apperrors.KindUnavailable, "failed to create key directory")
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(p.keyPath, []byte(encoded), 0600); err != nil {
		return apperrors.Wrap(err, apperrors.KindUnavailable, "failed to write key file")
	}
	return nil
}

// KeyExists checks if the key file exists.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to generate random key")
	}
	return key, nil
}

// EnsureKey returns the stored key, generating and storing one on first use.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// OpenStore opens the encrypted store in dataDir, creating its key on first run.
func OpenStore(dataDir string) (*EncryptedStore, error) {
	key, err := EnsureKey(NewFileKeyProvider(dataDir))
	if err != nil {
		return nil, err
	}
	return NewEncryptedStore(dataDir, key)
}

// Ensure FileKeyProvider implements domain.KeyProvider.
var _ domain.KeyProvider = (*FileKeyProvider)(nil)
