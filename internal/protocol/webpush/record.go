package webpush

import (
	"encoding/base64"

	"push_notify/internal/cryptographic/dh"
	"push_notify/internal/cryptographic/encryption"
	"push_notify/internal/model"
)

const (
	SaltSize = 16

	// Single aesgcm record of the default 4096 byte size plus its tag.
	maxCiphertextSize = 4096 + encryption.TagSize
	// Tag plus the two byte padding length.
	minCiphertextSize = encryption.TagSize + paddingLengthSize
)

// b64Decode accepts url-safe and standard alphabets, padded or not. Relays
// are not consistent about which one they forward.
func b64Decode(s string) ([]byte, error) {
	hasPadding := len(s) > 0 && s[len(s)-1] == '='
	isURL := true
	for i := 0; i < len(s); i++ {
		if s[i] == '+' || s[i] == '/' {
			isURL = false
			break
		}
	}

	var enc *base64.Encoding
	switch {
	case isURL && hasPadding:
		enc = base64.URLEncoding
	case isURL:
		enc = base64.RawURLEncoding
	case hasPadding:
		enc = base64.StdEncoding
	default:
		enc = base64.RawStdEncoding
	}
	return enc.DecodeString(s)
}

func field(userInfo map[string]any, key string) ([]byte, error) {
	v, ok := userInfo[key]
	if !ok || v == nil {
		return nil, malformed("missing field " + key)
	}
	s, ok := v.(string)
	if !ok {
		return nil, malformed("field " + key + " is not a string")
	}
	if s == "" {
		return nil, malformed("field " + key + " is empty")
	}
	b, err := b64Decode(s)
	if err != nil {
		return nil, malformed("field " + key + " is not base64")
	}
	return b, nil
}

// ParseRecord validates the platform user info and decodes the three fields
// required for decryption.
func ParseRecord(userInfo map[string]any) (model.PushRecord, error) {
	var rec model.PushRecord

	ct, err := field(userInfo, model.UserInfoMessage)
	if err != nil {
		return rec, err
	}
	pub, err := field(userInfo, model.UserInfoPublicKey)
	if err != nil {
		return rec, err
	}
	salt, err := field(userInfo, model.UserInfoSalt)
	if err != nil {
		return rec, err
	}

	rec = model.PushRecord{Ciphertext: ct, PublicKey: pub, Salt: salt}
	if err := Validate(rec); err != nil {
		return model.PushRecord{}, err
	}
	return rec, nil
}

// Validate checks structure and sizes only; it does no cryptography.
func Validate(rec model.PushRecord) error {
	if len(rec.PublicKey) != dh.PublicKeySize || rec.PublicKey[0] != 0x04 {
		return malformed("sender public key is not an uncompressed point")
	}
	if len(rec.Salt) != SaltSize {
		return malformed("salt must be 16 bytes")
	}
	if len(rec.Ciphertext) < minCiphertextSize {
		return malformed("ciphertext shorter than tag")
	}
	if len(rec.Ciphertext) > maxCiphertextSize {
		return malformed("ciphertext exceeds record size")
	}
	return nil
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
