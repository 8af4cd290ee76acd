// Package webpush implements the "aesgcm" Web Push content encoding
// (draft-ietf-webpush-encryption-04 over draft-ietf-httpbis-encryption-encoding-03),
// the scheme Mastodon servers use for encrypted push payloads.
//
// The receiver holds a static P-256 key pair and a 16 byte auth secret. Each
// message carries the sender's ephemeral public key and a 16 byte salt.
package webpush

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"push_notify/internal/cryptographic/dh"
	"push_notify/internal/cryptographic/encryption"
	"push_notify/internal/cryptographic/kdf"
	"push_notify/internal/model"
)

const (
	AuthSecretSize = 16

	keySize           = 16
	nonceSize         = 12
	ikmSize           = 32
	paddingLengthSize = 2
)

var (
	authInfo      = []byte("Content-Encoding: auth\x00")
	cekInfoPrefix = []byte("Content-Encoding: aesgcm\x00")
	nonceInfoPref = []byte("Content-Encoding: nonce\x00")
	curveLabel    = []byte("P-256\x00")
)

// KeyMaterial is the receiver side of the scheme.
type KeyMaterial interface {
	PrivateKey() *ecdh.PrivateKey
	PublicKey() []byte
	AuthSecret() []byte
}

// keyContext binds both public keys into the derivation:
// "P-256" 0x00 || len(receiver) || receiver || len(sender) || sender,
// lengths as 16 bit big endian.
func keyContext(receiverPub, senderPub []byte) []byte {
	ctx := make([]byte, 0, len(curveLabel)+2+len(receiverPub)+2+len(senderPub))
	ctx = append(ctx, curveLabel...)
	ctx = binary.BigEndian.AppendUint16(ctx, uint16(len(receiverPub)))
	ctx = append(ctx, receiverPub...)
	ctx = binary.BigEndian.AppendUint16(ctx, uint16(len(senderPub)))
	ctx = append(ctx, senderPub...)
	return ctx
}

// deriveKeys returns the content encryption key and the nonce for one
// message. sharedSecret is the raw ECDH output.
func deriveKeys(sharedSecret, auth, salt, receiverPub, senderPub []byte) (cek, nonce []byte, err error) {
	ikm, err := kdf.Derive(sharedSecret, auth, authInfo, ikmSize)
	if err != nil {
		return nil, nil, err
	}

	ctx := keyContext(receiverPub, senderPub)
	cek, err = kdf.Derive(ikm, salt, slices.Concat(cekInfoPrefix, ctx), keySize)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = kdf.Derive(ikm, salt, slices.Concat(nonceInfoPref, ctx), nonceSize)
	if err != nil {
		return nil, nil, err
	}
	return cek, nonce, nil
}

// Decrypt recovers the plaintext of rec. It performs no I/O and never
// returns partial plaintext: every failure is a *DecryptError.
func Decrypt(rec model.PushRecord, keys KeyMaterial) ([]byte, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}
	if keys == nil || keys.PrivateKey() == nil {
		return nil, &DecryptError{Kind: KeyAgreementFailure, Reason: "no receiver key"}
	}
	auth := keys.AuthSecret()
	if len(auth) != AuthSecretSize {
		return nil, &DecryptError{Kind: KeyAgreementFailure, Reason: "auth secret must be 16 bytes"}
	}

	shared, err := dh.SharedSecret(keys.PrivateKey(), rec.PublicKey)
	if err != nil {
		return nil, &DecryptError{Kind: KeyAgreementFailure, Reason: "invalid sender public key"}
	}

	cek, nonce, err := deriveKeys(shared, auth, rec.Salt, keys.PublicKey(), rec.PublicKey)
	if err != nil {
		return nil, &DecryptError{Kind: KeyAgreementFailure, Reason: "key derivation"}
	}

	padded, err := encryption.AEADOpen(cek, nonce, rec.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}

	plain, ok := unpad(padded)
	if !ok {
		return nil, ErrAuthentication
	}
	return plain, nil
}

// unpad strips "uint16 length || zero bytes" from the front of block. The
// padding bytes are all inspected regardless of where a non-zero one is.
func unpad(block []byte) ([]byte, bool) {
	if len(block) < paddingLengthSize {
		return nil, false
	}
	padLen := int(binary.BigEndian.Uint16(block))
	if paddingLengthSize+padLen > len(block) {
		return nil, false
	}
	var acc byte
	for _, b := range block[paddingLengthSize : paddingLengthSize+padLen] {
		acc |= b
	}
	if acc != 0 {
		return nil, false
	}
	return block[paddingLengthSize+padLen:], true
}

type (
	// EncryptOptions controls the reference encryptor. Zero value means
	// random salt, fresh ephemeral key, no padding.
	EncryptOptions struct {
		Padding   int
		Salt      []byte
		Ephemeral *ecdh.PrivateKey
		Rand      io.Reader
	}
)

// Encrypt is the sending side of the scheme, used by the reference sender
// and by tests. receiverPub is the receiver's uncompressed public key.
func Encrypt(plaintext, receiverPub, auth []byte, opts *EncryptOptions) (model.PushRecord, error) {
	var o EncryptOptions
	if opts != nil {
		o = *opts
	}
	if o.Rand == nil {
		o.Rand = rand.Reader
	}
	if len(auth) != AuthSecretSize {
		return model.PushRecord{}, fmt.Errorf("webpush: auth secret must be %d bytes", AuthSecretSize)
	}
	if o.Padding < 0 || o.Padding > 0xffff {
		return model.PushRecord{}, fmt.Errorf("webpush: invalid padding length %d", o.Padding)
	}
	if paddingLengthSize+o.Padding+len(plaintext) > maxCiphertextSize-encryption.TagSize {
		return model.PushRecord{}, fmt.Errorf("webpush: message of %d bytes exceeds record size", len(plaintext))
	}

	salt := o.Salt
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := io.ReadFull(o.Rand, salt); err != nil {
			return model.PushRecord{}, fmt.Errorf("webpush: salt: %w", err)
		}
	}
	if len(salt) != SaltSize {
		return model.PushRecord{}, fmt.Errorf("webpush: salt must be %d bytes", SaltSize)
	}

	eph := o.Ephemeral
	if eph == nil {
		var err error
		eph, err = ecdh.P256().GenerateKey(o.Rand)
		if err != nil {
			return model.PushRecord{}, fmt.Errorf("webpush: ephemeral key: %w", err)
		}
	}
	senderPub := eph.PublicKey().Bytes()

	shared, err := dh.SharedSecret(eph, receiverPub)
	if err != nil {
		return model.PushRecord{}, fmt.Errorf("webpush: key agreement: %w", err)
	}

	cek, nonce, err := deriveKeys(shared, auth, salt, receiverPub, senderPub)
	if err != nil {
		return model.PushRecord{}, fmt.Errorf("webpush: derive keys: %w", err)
	}

	padded := make([]byte, paddingLengthSize+o.Padding, paddingLengthSize+o.Padding+len(plaintext))
	binary.BigEndian.PutUint16(padded, uint16(o.Padding))
	padded = append(padded, plaintext...)

	ct, err := encryption.AEADSeal(cek, nonce, padded, nil)
	if err != nil {
		return model.PushRecord{}, fmt.Errorf("webpush: seal: %w", err)
	}

	return model.PushRecord{
		Ciphertext: ct,
		PublicKey:  senderPub,
		Salt:       salt,
	}, nil
}

// UserInfo renders rec the way a relay forwards it to the device.
func UserInfo(rec model.PushRecord) map[string]any {
	return map[string]any{
		model.UserInfoMessage:   encode(rec.Ciphertext),
		model.UserInfoPublicKey: encode(rec.PublicKey),
		model.UserInfoSalt:      encode(rec.Salt),
	}
}
