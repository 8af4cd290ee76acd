package webpush

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"push_notify/internal/cryptographic/encryption"
	"push_notify/internal/model"
)

type testKeys struct {
	priv *ecdh.PrivateKey
	auth []byte
}

func (k *testKeys) PrivateKey() *ecdh.PrivateKey { return k.priv }
func (k *testKeys) PublicKey() []byte { return k.priv.PublicKey().Bytes() }
func (k *testKeys) AuthSecret() []byte { return k.auth }

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, AuthSecretSize)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return &testKeys{priv: priv, auth: auth}
}

func seal(t *testing.T, keys *testKeys, plaintext []byte, padding int) model.PushRecord {
	t.Helper()
	rec, err := Encrypt(plaintext, keys.PublicKey(), keys.auth, &EncryptOptions{Padding: padding})
	require.NoError(t, err)
	return rec
}

func TestDecryptRoundTrip(t *testing.T) {
	keys := newTestKeys(t)

	tests := []struct {
		name      string
		plaintext []byte
		padding   int
	}{
		{name: "json payload", plaintext: []byte(`{"title":"Alice","body":"replied to you"}`)},
		{name: "empty plaintext", plaintext: []byte{}},
		{name: "padded", plaintext: []byte("hello"), padding: 100},
		{name: "large", plaintext: bytes.Repeat([]byte{'x'}, 3000), padding: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := seal(t, keys, tt.plaintext, tt.padding)
			assert.Len(t, rec.Ciphertext, paddingLengthSize+tt.padding+len(tt.plaintext)+16)

			got, err := Decrypt(rec, keys)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestDecryptIsDeterministic(t *testing.T) {
	keys := newTestKeys(t)
	rec := seal(t, keys, []byte("same input"), 3)

	first, err := Decrypt(rec, keys)
	require.NoError(t, err)
	second, err := Decrypt(rec, keys)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// Key pairs, auth secret and salt are those of RFC 8291 Appendix A. The
// aesgcm ciphertext was produced by a separate implementation of the draft-04
// derivation with a padding length of 4.
var knownAnswer = struct {
	receiverPriv, receiverPub string
	senderPriv, senderPub     string
	auth, salt                string
	cek, nonce                string
	ciphertext                string
	plaintext                 string
	padding                   int
}{
	receiverPriv: "q1dXpw3UpT5VOmu_cf_v6ih07Aems3njxI-JWgLcM94",
	receiverPub:  "BCVxsr7N_eNgVRqvHtD0zTZsEc6-VV-JvLexhqUzORcxaOzi6-AYWXvTBHm4bjyPjs7Vd8pZGH6SRpkNtoIAiw4",
	senderPriv:   "yfWPiYE-n46HLnH0KqZOF1fJJU3MYrct3AELtAQ-oRw",
	senderPub:    "BP4z9KsN6nGRTbVYI_c7VJSPQTBtkgcy27mlmlMoZIIgDll6e3vCYLocInmYWAmS6TlzAC8wEqKK6PBru3jl7A8",
	auth:         "BTBZMqHH6r4Tts7J_aSIgg",
	salt:         "DGv6ra1nlYgDCS1FRnbzlw",
	cek:          "7rkwhO2bYeeWJTMpfNkMtQ",
	nonce:        "p8UeiVG6ERGF9g4z",
	ciphertext:   "4qhZRDzR7_3xtK9mprrGhPt5bG0iilHBqANzg8hzigkeL3M9IaT_upGqdj1Rpg5Stftt2MEooCioUqK_Qa7m",
	plaintext:    "When I grow up, I want to be a watermelon",
	padding:      4,
}

func b64(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestDecryptKnownAnswer(t *testing.T) {
	ka := knownAnswer
	priv, err := ecdh.P256().NewPrivateKey(b64(t, ka.receiverPriv))
	require.NoError(t, err)
	keys := &testKeys{priv: priv, auth: b64(t, ka.auth)}
	require.Equal(t, b64(t, ka.receiverPub), keys.PublicKey())

	rec := model.PushRecord{
		Ciphertext: b64(t, ka.ciphertext),
		PublicKey:  b64(t, ka.senderPub),
		Salt:       b64(t, ka.salt),
	}

	got, err := Decrypt(rec, keys)
	require.NoError(t, err)
	assert.Equal(t, ka.plaintext, string(got))

	t.Run("derived keys", func(t *testing.T) {
		shared, err := priv.ECDH(mustPub(t, rec.PublicKey))
		require.NoError(t, err)
		cek, nonce, err := deriveKeys(shared, keys.auth, rec.Salt, keys.PublicKey(), rec.PublicKey)
		require.NoError(t, err)
		assert.Equal(t, b64(t, ka.cek), cek)
		assert.Equal(t, b64(t, ka.nonce), nonce)
	})

	t.Run("encrypt reproduces ciphertext", func(t *testing.T) {
		sender, err := ecdh.P256().NewPrivateKey(b64(t, ka.senderPriv))
		require.NoError(t, err)
		out, err := Encrypt([]byte(ka.plaintext), keys.PublicKey(), keys.auth, &EncryptOptions{
			Padding:   ka.padding,
			Salt:      rec.Salt,
			Ephemeral: sender,
		})
		require.NoError(t, err)
		assert.Equal(t, rec, out)
	})

	t.Run("tampered", func(t *testing.T) {
		bad := rec
		bad.Ciphertext = bytes.Clone(rec.Ciphertext)
		bad.Ciphertext[0] ^= 0x01
		_, err := Decrypt(bad, keys)
		assert.ErrorIs(t, err, ErrAuthentication)
	})
}

func TestDecryptFixedEphemeralAndSalt(t *testing.T) {
	keys := newTestKeys(t)
	eph, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	salt := bytes.Repeat([]byte{0x42}, SaltSize)

	opts := &EncryptOptions{Ephemeral: eph, Salt: salt}
	a, err := Encrypt([]byte("msg"), keys.PublicKey(), keys.auth, opts)
	require.NoError(t, err)
	b, err := Encrypt([]byte("msg"), keys.PublicKey(), keys.auth, opts)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, eph.PublicKey().Bytes(), a.PublicKey)
	assert.Equal(t, salt, a.Salt)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	keys := newTestKeys(t)
	rec := seal(t, keys, []byte(`{"title":"t","body":"b"}`), 4)

	for i := range rec.Ciphertext {
		tampered := rec
		tampered.Ciphertext = bytes.Clone(rec.Ciphertext)
		tampered.Ciphertext[i] ^= 0x01

		got, err := Decrypt(tampered, keys)
		require.Error(t, err, "byte %d", i)
		assert.ErrorIs(t, err, ErrAuthentication, "byte %d", i)
		assert.Nil(t, got, "byte %d", i)
	}
}

func TestDecryptWrongKeys(t *testing.T) {
	keys := newTestKeys(t)
	rec := seal(t, keys, []byte("secret"), 0)

	t.Run("other receiver", func(t *testing.T) {
		_, err := Decrypt(rec, newTestKeys(t))
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("other auth secret", func(t *testing.T) {
		other := &testKeys{priv: keys.priv, auth: bytes.Repeat([]byte{1}, AuthSecretSize)}
		_, err := Decrypt(rec, other)
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("other salt", func(t *testing.T) {
		moved := rec
		moved.Salt = bytes.Repeat([]byte{9}, SaltSize)
		_, err := Decrypt(moved, keys)
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("substituted sender key", func(t *testing.T) {
		eph, err := ecdh.P256().GenerateKey(rand.Reader)
		require.NoError(t, err)
		moved := rec
		moved.PublicKey = eph.PublicKey().Bytes()
		_, err = Decrypt(moved, keys)
		assert.ErrorIs(t, err, ErrAuthentication)
	})
}

func TestDecryptMalformed(t *testing.T) {
	keys := newTestKeys(t)
	valid := seal(t, keys, []byte("x"), 0)

	notOnCurve := bytes.Clone(valid.PublicKey)
	notOnCurve[64] ^= 0xff

	tests := []struct {
		name string
		rec  model.PushRecord
		kind Kind
	}{
		{name: "empty record", rec: model.PushRecord{}, kind: MalformedRecord},
		{name: "compressed point", rec: model.PushRecord{Ciphertext: valid.Ciphertext, PublicKey: valid.PublicKey[:33], Salt: valid.Salt}, kind: MalformedRecord},
		{name: "short salt", rec: model.PushRecord{Ciphertext: valid.Ciphertext, PublicKey: valid.PublicKey, Salt: valid.Salt[:8]}, kind: MalformedRecord},
		{name: "ciphertext shorter than tag", rec: model.PushRecord{Ciphertext: valid.Ciphertext[:10], PublicKey: valid.PublicKey, Salt: valid.Salt}, kind: MalformedRecord},
		{name: "oversized ciphertext", rec: model.PushRecord{Ciphertext: make([]byte, maxCiphertextSize+1), PublicKey: valid.PublicKey, Salt: valid.Salt}, kind: MalformedRecord},
		{name: "point not on curve", rec: model.PushRecord{Ciphertext: valid.Ciphertext, PublicKey: notOnCurve, Salt: valid.Salt}, kind: KeyAgreementFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decrypt(tt.rec, keys)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestDecryptBadPaddingLooksLikeTagFailure(t *testing.T) {
	keys := newTestKeys(t)

	rec := seal(t, keys, nil, 0)
	shared, err := keys.priv.ECDH(mustPub(t, rec.PublicKey))
	require.NoError(t, err)
	cek, nonce, err := deriveKeys(shared, keys.auth, rec.Salt, keys.PublicKey(), rec.PublicKey)
	require.NoError(t, err)

	// Padding length claims more bytes than exist.
	block := make([]byte, 2, 10)
	binary.BigEndian.PutUint16(block, 500)
	block = append(block, []byte("payload")...)
	rec.Ciphertext = sealRaw(t, cek, nonce, block)

	_, err = Decrypt(rec, keys)
	assert.Equal(t, ErrAuthentication, err)

	// Non-zero padding byte.
	block = []byte{0, 2, 0, 7, 'h', 'i'}
	rec.Ciphertext = sealRaw(t, cek, nonce, block)
	_, err = Decrypt(rec, keys)
	assert.Equal(t, ErrAuthentication, err)
}

func TestKeyContextLayout(t *testing.T) {
	recv := bytes.Repeat([]byte{0xaa}, 65)
	send := bytes.Repeat([]byte{0xbb}, 65)

	ctx := keyContext(recv, send)
	require.Len(t, ctx, 6+2+65+2+65)
	assert.Equal(t, []byte("P-256\x00"), ctx[:6])
	assert.Equal(t, []byte{0x00, 0x41}, ctx[6:8])
	assert.Equal(t, recv, ctx[8:73])
	assert.Equal(t, []byte{0x00, 0x41}, ctx[73:75])
	assert.Equal(t, send, ctx[75:])
}

func TestUnpad(t *testing.T) {
	tests := []struct {
		name  string
		block []byte
		want  []byte
		ok    bool
	}{
		{name: "no padding", block: []byte{0, 0, 'a'}, want: []byte{'a'}, ok: true},
		{name: "two zero bytes", block: []byte{0, 2, 0, 0, 'a', 'b'}, want: []byte("ab"), ok: true},
		{name: "only padding", block: []byte{0, 1, 0}, want: []byte{}, ok: true},
		{name: "too short", block: []byte{0}, ok: false},
		{name: "length overflow", block: []byte{0, 3, 0, 0}, ok: false},
		{name: "dirty padding", block: []byte{0, 2, 0, 1, 'a'}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := unpad(tt.block)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestEncryptRejectsBadInput(t *testing.T) {
	keys := newTestKeys(t)

	_, err := Encrypt([]byte("x"), keys.PublicKey(), []byte("short"), nil)
	assert.Error(t, err)

	_, err = Encrypt([]byte("x"), keys.PublicKey(), keys.auth, &EncryptOptions{Padding: -1})
	assert.Error(t, err)

	_, err = Encrypt(make([]byte, 5000), keys.PublicKey(), keys.auth, nil)
	assert.Error(t, err)

	_, err = Encrypt([]byte("x"), keys.PublicKey(), keys.auth, &EncryptOptions{Salt: []byte{1, 2}})
	assert.Error(t, err)
}

func mustPub(t *testing.T, b []byte) *ecdh.PublicKey {
	t.Helper()
	pub, err := ecdh.P256().NewPublicKey(b)
	require.NoError(t, err)
	return pub
}

func sealRaw(t *testing.T, cek, nonce, block []byte) []byte {
	t.Helper()
	ct, err := encryption.AEADSeal(cek, nonce, block, nil)
	require.NoError(t, err)
	return ct
}
