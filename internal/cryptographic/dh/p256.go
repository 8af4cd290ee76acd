package dh

import (
	"crypto/ecdh"
	"fmt"
)

// PublicKeySize is the length of an uncompressed P-256 point.
const PublicKeySize = 65

func ParsePrivateKey(scalar []byte) (*ecdh.PrivateKey, error) {
	return ecdh.P256().NewPrivateKey(scalar)
}

// ParsePublicKey accepts only the uncompressed encoding.
func ParsePublicKey(point []byte) (*ecdh.PublicKey, error) {
	if len(point) != PublicKeySize || point[0] != 0x04 {
		return nil, fmt.Errorf("public key is not an uncompressed P-256 point")
	}
	return ecdh.P256().NewPublicKey(point)
}

// SharedSecret performs priv * pub and returns the x coordinate.
func SharedSecret(priv *ecdh.PrivateKey, pub []byte) ([]byte, error) {
	p, err := ParsePublicKey(pub)
	if err != nil {
		return nil, err
	}
	return priv.ECDH(p)
}
