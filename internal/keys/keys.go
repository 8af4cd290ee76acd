// Package keys holds the receiver's push key material. It is loaded once per
// process and is read-only afterwards.
package keys

import (
	"context"
	"crypto/ecdh"
	"encoding/base64"
	"errors"
	"fmt"

	"push_notify/internal/config"
	"push_notify/internal/cryptographic/dh"
	"push_notify/internal/model"
	"push_notify/internal/protocol/webpush"
)

var (
	// ErrNoKeyMaterial is fatal for the pipeline: nothing can be decrypted.
	ErrNoKeyMaterial = errors.New("keys: no key material")
	ErrInvalidKey    = errors.New("keys: invalid key material")
)

type (
	// Store is the secure storage the key pair is read from.
	Store interface {
		GetByName(ctx context.Context, name string) (*model.KeyPairDocument, error)
	}

	Material struct {
		priv *ecdh.PrivateKey
		pub  []byte
		auth []byte
	}
)

var _ webpush.KeyMaterial = (*Material)(nil)

// New validates a raw P-256 scalar and a 16 byte auth secret.
func New(private, auth []byte) (*Material, error) {
	if len(private) == 0 || len(auth) == 0 {
		return nil, ErrNoKeyMaterial
	}
	priv, err := dh.ParsePrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("%w: private key", ErrInvalidKey)
	}
	if len(auth) != webpush.AuthSecretSize {
		return nil, fmt.Errorf("%w: auth secret must be %d bytes", ErrInvalidKey, webpush.AuthSecretSize)
	}

	return &Material{
		priv: priv,
		pub:  priv.PublicKey().Bytes(),
		auth: append([]byte(nil), auth...),
	}, nil
}

// FromConfig decodes base64url key material carried in the config.
func FromConfig(cfg config.KeysConfig) (*Material, error) {
	if cfg.PrivateKey == "" || cfg.AuthSecret == "" {
		return nil, ErrNoKeyMaterial
	}
	priv, err := base64.RawURLEncoding.DecodeString(trimPadding(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not base64url", ErrInvalidKey)
	}
	auth, err := base64.RawURLEncoding.DecodeString(trimPadding(cfg.AuthSecret))
	if err != nil {
		return nil, fmt.Errorf("%w: auth secret is not base64url", ErrInvalidKey)
	}
	return New(priv, auth)
}

// Load reads the named key pair from store.
func Load(ctx context.Context, store Store, name string) (*Material, error) {
	doc, err := store.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("keys: load %q: %w", name, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: no entry named %q", ErrNoKeyMaterial, name)
	}
	return New(doc.PrivateKey, doc.AuthSecret)
}

// Resolve prefers inline config keys and falls back to the store.
func Resolve(ctx context.Context, cfg config.KeysConfig, store Store) (*Material, error) {
	if cfg.HasInlineKeys() {
		return FromConfig(cfg)
	}
	if store == nil {
		return nil, ErrNoKeyMaterial
	}
	return Load(ctx, store, cfg.StoreName)
}

// PrivateKey is nil on a nil Material.
func (m *Material) PrivateKey() *ecdh.PrivateKey {
	if m == nil {
		return nil
	}
	return m.priv
}

// PublicKey returns the uncompressed point the push service encrypts to.
func (m *Material) PublicKey() []byte {
	return append([]byte(nil), m.pub...)
}

func (m *Material) AuthSecret() []byte {
	return append([]byte(nil), m.auth...)
}

// PublicKeyString is the base64url form handed to the push service.
func (m *Material) PublicKeyString() string {
	return base64.RawURLEncoding.EncodeToString(m.pub)
}

func (m *Material) String() string {
	return "keys.Material{public=" + m.PublicKeyString() + " private=REDACTED}"
}

func (m *Material) GoString() string {
	return m.String()
}

// MarshalJSON keeps the private scalar and auth secret out of any encoded form.
func (m *Material) MarshalJSON() ([]byte, error) {
	return []byte(`{"public_key":"` + m.PublicKeyString() + `"}`), nil
}

func trimPadding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}
