// Package keys manages the RSA key pair that signs identity assertions.
// The pair is loaded once at process start; a missing or malformed key is a
// fatal configuration error, never a runtime one.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/pkg/errors"
)

// KeyPair holds the signing (private) and verification (public) halves.
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// GenerateRSAKeyPair generates a new RSA key pair for RS256 signing.
// Intended for development and test doubles; production keys come from PEM.
func GenerateRSAKeyPair(bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "[GenerateRSAKeyPair] rsa.GenerateKey")
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// ExportPrivateKeyPEM exports the RSA private key as PKCS#1 PEM.
func (kp *KeyPair) ExportPrivateKeyPEM() string {
	privateKeyBytes := x509.MarshalPKCS1PrivateKey(kp.PrivateKey)
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: privateKeyBytes,
	}))
}

// ExportPublicKeyPEM exports the public key as PKIX PEM.
func (kp *KeyPair) ExportPublicKeyPEM() (string, error) {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return "", errors.Wrap(err, "[ExportPublicKeyPEM] x509.MarshalPKIXPublicKey")
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	})), nil
}

// LoadKeyPairFromPEM loads a key pair from a PKCS#1 private key PEM. The
// public half is derived from the private key.
func LoadKeyPairFromPEM(privateKeyPEM string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, errors.New("[LoadKeyPairFromPEM] failed to decode PEM block")
	}

	privKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "[LoadKeyPairFromPEM] x509.ParsePKCS1PrivateKey")
	}

	return &KeyPair{
		PrivateKey: privKey,
		PublicKey:  &privKey.PublicKey,
	}, nil
}
