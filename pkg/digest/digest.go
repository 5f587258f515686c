// Package digest computes and verifies labelled content digests such as
// "sha256:<hex>".
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a supported hash function. The name is also the digest
// label prefix.
type Algorithm string

// Supported algorithms.
const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// Digest errors.
var (
	ErrUnknownAlgorithm = errors.New("unknown digest algorithm")
	ErrMalformedDigest  = errors.New("malformed digest")
	ErrHashMismatch     = errors.New("hash mismatch")
)

// ParseAlgorithm validates an algorithm name. The empty string selects SHA256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// New returns a fresh hash for the algorithm.
func (a Algorithm) New() hash.Hash {
	if a == BLAKE3 {
		return blake3.New()
	}

	return sha256.New()
}

// Size is the raw digest length in bytes.
func (a Algorithm) Size() int {
	return a.New().Size()
}

// Format labels a raw digest: "<algorithm>:<lowercase hex>".
func (a Algorithm) Format(sum []byte) string {
	return string(a) + ":" + hex.EncodeToString(sum)
}

// Sum hashes data and returns the labelled digest.
func (a Algorithm) Sum(data []byte) string {
	h := a.New()
	h.Write(data)

	return a.Format(h.Sum(nil))
}

// SumReader hashes everything read from r. It returns the labelled digest
// and the number of bytes read.
func (a Algorithm) SumReader(r io.Reader) (string, int64, error) {
	h := a.New()

	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("hashing content: %w", err)
	}

	return a.Format(h.Sum(nil)), n, nil
}

// SumFile hashes the file at path.
func (a Algorithm) SumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return a.SumReader(f)
}

// Parse splits a labelled digest into its algorithm and raw bytes.
func Parse(labelled string) (Algorithm, []byte, error) {
	name, hexPart, ok := strings.Cut(labelled, ":")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing algorithm label in %q", ErrMalformedDigest, labelled)
	}

	alg, err := ParseAlgorithm(name)
	if err != nil || name == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}

	sum, err := hex.DecodeString(hexPart)
	if err != nil || len(sum) != alg.Size() {
		return "", nil, fmt.Errorf("%w: %q", ErrMalformedDigest, labelled)
	}

	return alg, sum, nil
}

// Verify checks data against a labelled digest using the digest's own
// algorithm.
func Verify(labelled string, data []byte) error {
	alg, _, err := Parse(labelled)
	if err != nil {
		return err
	}

	calculated := alg.Sum(data)
	if calculated != labelled {
		return fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, labelled, calculated)
	}

	return nil
}
