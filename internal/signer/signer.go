// Package signer signs manifest digests with an RSA or Ed25519 private key.
package signer

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Algorithm identifies a signature scheme as written into the manifest.
type Algorithm string

// Supported algorithms. RSA-SHA256 is PKCS#1 v1.5 over SHA-256 of the
// message; Ed25519 signs the message directly.
const (
	RSASHA256 Algorithm = "RSA-SHA256"
	Ed25519   Algorithm = "Ed25519"
)

// MinRSABits is the smallest RSA modulus accepted for signing.
const MinRSABits = 2048

// Signer errors. Every key loading failure wraps ErrKeyUnusable.
var (
	ErrKeyUnusable       = errors.New("signing key unusable")
	ErrNoKey             = errors.New("no signing key configured")
	ErrBadPEM            = errors.New("no PEM private key block found")
	ErrUnsupportedKey    = errors.New("unsupported key type")
	ErrWeakKey           = errors.New("RSA key shorter than 2048 bits")
	ErrAlgorithmMismatch = errors.New("key does not match configured algorithm")
	ErrEncryptedKey      = errors.New("encrypted key requires an age identity")
	ErrUnknownAlgorithm  = errors.New("unknown signature algorithm")
	ErrBadSignature      = errors.New("signature verification failed")
)

// ParseAlgorithm accepts the manifest names case-insensitively.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "RSA-SHA256", "RS256":
		return RSASHA256, nil
	case "ED25519", "EDDSA":
		return Ed25519, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// KeySigner signs with an in-memory private key.
type KeySigner struct {
	key    crypto.Signer
	alg    Algorithm
	keyRef string
}

// New wraps key. An empty keyRef defaults to the public key fingerprint.
func New(key crypto.Signer, keyRef string) (*KeySigner, error) {
	alg, err := algorithmFor(key)
	if err != nil {
		return nil, err
	}

	if keyRef == "" {
		keyRef, err = Fingerprint(key.Public())
		if err != nil {
			return nil, err
		}
	}

	return &KeySigner{key: key, alg: alg, keyRef: keyRef}, nil
}

func algorithmFor(key crypto.Signer) (Algorithm, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		if k.N.BitLen() < MinRSABits {
			return "", fmt.Errorf("%w: %w: %d bits", ErrKeyUnusable, ErrWeakKey, k.N.BitLen())
		}

		return RSASHA256, nil
	case ed25519.PrivateKey:
		return Ed25519, nil
	default:
		return "", fmt.Errorf("%w: %w: %T", ErrKeyUnusable, ErrUnsupportedKey, key)
	}
}

// Sign signs msg, which is the overall digest of a manifest.
func (s *KeySigner) Sign(msg []byte) ([]byte, error) {
	switch s.alg {
	case RSASHA256:
		sum := sha256.Sum256(msg)

		sig, err := rsa.SignPKCS1v15(rand.Reader, s.key.(*rsa.PrivateKey), crypto.SHA256, sum[:])
		if err != nil {
			return nil, fmt.Errorf("RSA signing failed: %w", err)
		}

		return sig, nil
	case Ed25519:
		return ed25519.Sign(s.key.(ed25519.PrivateKey), msg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s.alg)
	}
}

// Algorithm returns the manifest algorithm identifier.
func (s *KeySigner) Algorithm() string { return string(s.alg) }

// KeyRef returns the public key reference embedded in signatures.
func (s *KeySigner) KeyRef() string { return s.keyRef }

// Public returns the verification key.
func (s *KeySigner) Public() crypto.PublicKey { return s.key.Public() }

// Fingerprint is "sha256:<hex>" of the PKIX DER encoding of pub.
func Fingerprint(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("encoding public key: %w", err)
	}

	sum := sha256.Sum256(der)

	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Verify checks sig over msg with pub under alg.
func Verify(alg Algorithm, pub crypto.PublicKey, msg, sig []byte) error {
	switch alg {
	case RSASHA256:
		k, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrUnsupportedKey, pub, alg)
		}

		sum := sha256.Sum256(msg)
		if err := rsa.VerifyPKCS1v15(k, crypto.SHA256, sum[:], sig); err != nil {
			return fmt.Errorf("%w: %v", ErrBadSignature, err)
		}

		return nil
	case Ed25519:
		k, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("%w: %T for %s", ErrUnsupportedKey, pub, alg)
		}

		if !ed25519.Verify(k, msg, sig) {
			return ErrBadSignature
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}
