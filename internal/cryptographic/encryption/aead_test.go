package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAEADRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	nonce := make([]byte, 12)

	ct, err := AEADSeal(key, nonce, []byte("hello"), nil)
	require.NoError(t, err)
	assert.Len(t, ct, len("hello")+TagSize)

	pt, err := AEADOpen(key, nonce, ct, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)

	ct[0] ^= 1
	_, err = AEADOpen(key, nonce, ct, nil)
	assert.Error(t, err)
}

func TestAEADRejectsBadParameters(t *testing.T) {
	_, err := AEADSeal(make([]byte, 15), make([]byte, 12), nil, nil)
	assert.Error(t, err)

	_, err = AEADSeal(make([]byte, 16), make([]byte, 8), nil, nil)
	assert.Error(t, err)

	_, err = AEADOpen(make([]byte, 16), make([]byte, 12), make([]byte, TagSize-1), nil)
	assert.Error(t, err)
}
