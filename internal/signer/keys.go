package signer

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"golang.org/x/crypto/ssh"
)

const ageHeader = "age-encryption.org/v1"

// LoadOptions describes where the signing key comes from. PEM takes
// precedence over KeyFile.
type LoadOptions struct {
	// PEM is inline key material, usually from VT_PRIVATE_KEY_PEM.
	PEM string
	// KeyFile is a PEM or OpenSSH key file, optionally age-encrypted.
	KeyFile string
	// AgeIdentityFile holds the age identities for an encrypted KeyFile.
	AgeIdentityFile string
	// Algorithm, when set, must match the key type.
	Algorithm string
	// KeyRef overrides the fingerprint written as keyRef.
	KeyRef string
}

// Configured reports whether signing was requested.
func (o LoadOptions) Configured() bool {
	return strings.TrimSpace(o.PEM) != "" || o.KeyFile != ""
}

// Load builds a signer from the options. It returns ErrNoKey when nothing
// is configured; every other failure wraps ErrKeyUnusable.
func Load(opts LoadOptions) (*KeySigner, error) {
	if !opts.Configured() {
		return nil, ErrNoKey
	}

	data, source, err := readKeyMaterial(opts)
	if err != nil {
		return nil, err
	}

	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	s, err := New(key, opts.KeyRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	if opts.Algorithm != "" {
		want, err := ParseAlgorithm(opts.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyUnusable, err)
		}

		if want != s.alg {
			return nil, fmt.Errorf("%w: %w: configured %s, key is %s", ErrKeyUnusable, ErrAlgorithmMismatch, want, s.alg)
		}
	}

	return s, nil
}

func readKeyMaterial(opts LoadOptions) ([]byte, string, error) {
	if strings.TrimSpace(opts.PEM) != "" {
		return []byte(opts.PEM), "inline key", nil
	}

	data, err := os.ReadFile(opts.KeyFile)
	if err != nil {
		return nil, opts.KeyFile, fmt.Errorf("%w: reading %s: %w", ErrKeyUnusable, opts.KeyFile, err)
	}

	if !strings.HasSuffix(opts.KeyFile, ".age") && !bytes.HasPrefix(data, []byte(ageHeader)) {
		return data, opts.KeyFile, nil
	}

	plain, err := decryptAge(data, opts.AgeIdentityFile)
	if err != nil {
		return nil, opts.KeyFile, fmt.Errorf("%w: %s: %w", ErrKeyUnusable, opts.KeyFile, err)
	}

	return plain, opts.KeyFile, nil
}

func decryptAge(ciphertext []byte, identityFile string) ([]byte, error) {
	if identityFile == "" {
		return nil, ErrEncryptedKey
	}

	f, err := os.Open(identityFile)
	if err != nil {
		return nil, fmt.Errorf("opening age identity: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plain, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted key: %w", err)
	}

	return plain, nil
}

// ParsePrivateKey decodes a PKCS#1, PKCS#8 or OpenSSH private key.
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	if bytes.Contains(data, []byte("OPENSSH PRIVATE KEY")) {
		raw, err := ssh.ParseRawPrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyUnusable, err)
		}

		return asSigner(raw)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyUnusable, ErrBadPEM)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing PKCS#1 key: %w", ErrKeyUnusable, err)
		}

		return key, nil
	case "ENCRYPTED PRIVATE KEY":
		return nil, fmt.Errorf("%w: %w: passphrase-protected PKCS#8", ErrKeyUnusable, ErrUnsupportedKey)
	}

	// Fall back through PKCS#1 and PKCS#8 for untyped or unusual labels.
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	raw, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %q block: %w", ErrKeyUnusable, block.Type, err)
	}

	return asSigner(raw)
}

func asSigner(raw any) (crypto.Signer, error) {
	switch k := raw.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case ed25519.PrivateKey:
		return k, nil
	case *ed25519.PrivateKey:
		return *k, nil
	default:
		return nil, fmt.Errorf("%w: %w: %T", ErrKeyUnusable, ErrUnsupportedKey, raw)
	}
}

// ParsePublicKey decodes a PKIX or PKCS#1 PEM public key, or a single
// OpenSSH authorized_keys line.
func ParsePublicKey(data []byte) (crypto.PublicKey, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("ssh-")) {
		pub, _, _, _, err := ssh.ParseAuthorizedKey(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parsing authorized key: %w", err)
		}

		cpk, ok := pub.(ssh.CryptoPublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedKey, pub.Type())
		}

		return cpk.CryptoPublicKey(), nil
	}

	block, _ := pem.Decode(trimmed)
	if block == nil {
		return nil, fmt.Errorf("no PEM public key block found")
	}

	if block.Type == "RSA PUBLIC KEY" {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}

	return pub, nil
}

// Generate creates a new private key for alg.
func Generate(alg Algorithm) (crypto.Signer, error) {
	switch alg {
	case Ed25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generating Ed25519 key: %w", err)
		}

		return priv, nil
	case RSASHA256:
		priv, err := rsa.GenerateKey(rand.Reader, 3072)
		if err != nil {
			return nil, fmt.Errorf("generating RSA key: %w", err)
		}

		return priv, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}

// MarshalPrivateKey encodes key as a PKCS#8 "PRIVATE KEY" PEM block.
func MarshalPrivateKey(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encoding private key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// MarshalPublicKey encodes pub as a PKIX "PUBLIC KEY" PEM block.
func MarshalPublicKey(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// EncryptAge encrypts key material to the age recipients listed in
// recipients, one per line as in an age recipients file.
func EncryptAge(plain []byte, recipients string) ([]byte, error) {
	parsed, err := age.ParseRecipients(strings.NewReader(recipients))
	if err != nil {
		return nil, fmt.Errorf("parsing age recipients: %w", err)
	}

	var buf bytes.Buffer

	w, err := age.Encrypt(&buf, parsed...)
	if err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}

	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}

	return buf.Bytes(), nil
}
