package manifest

import (
	"crypto"
	"encoding/base64"
	"fmt"

	"tier0/internal/signer"
	"tier0/pkg/digest"
)

// Verify checks m against the artifact bytes in files, keyed by artifact
// name. With a non-nil pub the signature must be present and valid.
func Verify(m *Manifest, files map[string][]byte, pub crypto.PublicKey) error {
	for _, e := range m.Artifacts {
		data, ok := files[e.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrArtifactMissing, e.Name)
		}

		if int64(len(data)) != e.Length {
			return fmt.Errorf("%w: %s: manifest says %d bytes, got %d", ErrLengthMismatch, e.Name, e.Length, len(data))
		}

		if err := digest.Verify(e.Digest, data); err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
	}

	alg, _, err := digest.Parse(m.OverallDigest)
	if err != nil {
		return fmt.Errorf("overallDigest: %w", err)
	}

	overall, err := OverallDigest(alg, m.Artifacts)
	if err != nil {
		return err
	}

	if overall != m.OverallDigest {
		return fmt.Errorf("%w: expected %s, got %s", ErrOverallMismatch, m.OverallDigest, overall)
	}

	if pub == nil {
		return nil
	}

	if m.Signature == nil {
		return ErrUnsigned
	}

	sigAlg, err := signer.ParseAlgorithm(m.Signature.Algorithm)
	if err != nil {
		return err
	}

	sig, err := base64.StdEncoding.DecodeString(m.Signature.Value)
	if err != nil {
		return fmt.Errorf("%w: signature value: %w", ErrMalformedPayload, err)
	}

	return signer.Verify(sigAlg, pub, []byte(m.OverallDigest), sig)
}
