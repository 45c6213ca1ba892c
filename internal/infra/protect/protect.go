package protect

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultSalt is published and shared by every deployment, so the key is a
	// pure function of the secret. That also means two deployments with the same
	// secret share a key. Set Config.Salt to diverge.
	DefaultSalt = "deepfake-detection-salt"

	Iterations = 100000
	KeySize    = 32

	// Suffix is appended to a file's path to name its protected form.
	Suffix = ".enc"
)

// DeriveKey derives the AES-256 key for secret with the default salt.
func DeriveKey(secret string) []byte {
	return DeriveKeyWithSalt(secret, DefaultSalt)
}

func DeriveKeyWithSalt(secret, salt string) []byte {
	return pbkdf2.Key([]byte(secret), []byte(salt), Iterations, KeySize, sha256.New)
}

type Config struct {
	Secret string
	Salt   string
}

// Protector encrypts analyzed media at rest with AES-256-GCM. Files are
// buffered whole, so memory use is bounded by entity.MaxFileSize.
type Protector struct {
	aead   cipher.AEAD
	logger *zap.Logger
}

func NewProtector(cfg Config, logger *zap.Logger) (*Protector, error) {
	salt := cfg.Salt
	if salt == "" {
		salt = DefaultSalt
	}
	return NewProtectorWithKey(DeriveKeyWithSalt(cfg.Secret, salt), logger)
}

func NewProtectorWithKey(key []byte, logger *zap.Logger) (*Protector, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Protector{aead: aead, logger: logger}, nil
}

// ProtectedPath is the name the protected form of path is written to.
func ProtectedPath(path string) string {
	return path + Suffix
}

// Protect writes the encrypted form of path next to it and then deletes the
// plaintext. The plaintext is only removed once the ciphertext is synced.
func (p *Protector) Protect(path string) (string, error) {
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", entity.ErrIO, path, err)
	}

	sealed, err := p.seal(plaintext)
	if err != nil {
		return "", err
	}

	protected := ProtectedPath(path)
	if err := writeFileSynced(protected, sealed); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", entity.ErrIO, protected, err)
	}

	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("%w: remove plaintext %s: %v", entity.ErrIO, path, err)
	}

	p.logger.Info("file protected",
		zap.String("path", protected),
		zap.Int("plaintext_bytes", len(plaintext)),
	)
	return protected, nil
}

// Reveal decrypts a protected file. Tampered files and wrong keys fail with
// entity.ErrAuthentication; filesystem failures with entity.ErrIO.
func (p *Protector) Reveal(protectedPath string) ([]byte, error) {
	sealed, err := os.ReadFile(protectedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", entity.ErrIO, protectedPath, err)
	}
	plaintext, err := p.open(sealed)
	if err != nil {
		return nil, fmt.Errorf("reveal %s: %w", protectedPath, err)
	}
	return plaintext, nil
}

// seal returns nonce || ciphertext || tag.
func (p *Protector) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, p.aead.NonceSize(), p.aead.NonceSize()+len(plaintext)+p.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return p.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (p *Protector) open(sealed []byte) ([]byte, error) {
	nonceSize := p.aead.NonceSize()
	if len(sealed) < nonceSize+p.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", entity.ErrAuthentication)
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := p.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrAuthentication, err)
	}
	return plaintext, nil
}

// writeFileSynced writes through a same-directory temp file so that dst either
// holds the full ciphertext or does not exist.
func writeFileSynced(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return err
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
