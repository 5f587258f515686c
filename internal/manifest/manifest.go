// Package manifest digests published artifacts and seals them in a
// manifest with an optional signature over the overall digest.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"tier0/pkg/canonical"
	"tier0/pkg/digest"
)

// Manifest errors.
var (
	ErrSigningFailed    = errors.New("manifest signing failed")
	ErrDuplicateName    = errors.New("duplicate artifact name")
	ErrArtifactMissing  = errors.New("artifact missing")
	ErrLengthMismatch   = errors.New("artifact length mismatch")
	ErrOverallMismatch  = errors.New("overall digest mismatch")
	ErrUnsigned         = errors.New("manifest is not signed")
	ErrMalformedPayload = errors.New("malformed manifest")
)

// Entry describes one published artifact.
type Entry struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
	Length int64  `json:"length"`
}

// Signature is the detached signature over the overall digest.
type Signature struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
	KeyRef    string `json:"keyRef"`
}

// Manifest is the sealed record of one run's artifacts. It is never
// modified after Build returns it.
type Manifest struct {
	GeneratedAt   time.Time  `json:"generatedAt"`
	Artifacts     []Entry    `json:"artifacts"`
	OverallDigest string     `json:"overallDigest"`
	Signature     *Signature `json:"signature"`
	Producer      string     `json:"producer,omitempty"`
	RunID         string     `json:"runId,omitempty"`
}

// Signed reports whether the manifest carries a signature.
func (m *Manifest) Signed() bool {
	return m.Signature != nil
}

// ArtifactsValue is the canonical form of an artifact list. The overall
// digest is computed over its canonical bytes, so order matters.
func ArtifactsValue(entries []Entry) canonical.Value {
	items := make([]canonical.Value, 0, len(entries))

	for _, e := range entries {
		items = append(items, canonical.Object(
			canonical.Field("name", canonical.String(e.Name)),
			canonical.Field("digest", canonical.String(e.Digest)),
			canonical.Field("length", canonical.Int(e.Length)),
		))
	}

	return canonical.Array(items...)
}

// OverallDigest digests the canonical artifact list with alg.
func OverallDigest(alg digest.Algorithm, entries []Entry) (string, error) {
	data, err := canonical.Marshal(ArtifactsValue(entries))
	if err != nil {
		return "", fmt.Errorf("canonicalizing artifact list: %w", err)
	}

	return alg.Sum(data), nil
}

// Value is the document form of the manifest.
func (m *Manifest) Value() canonical.Value {
	sig := canonical.Null()
	if m.Signature != nil {
		sig = canonical.Object(
			canonical.Field("algorithm", canonical.String(m.Signature.Algorithm)),
			canonical.Field("value", canonical.String(m.Signature.Value)),
			canonical.Field("keyRef", canonical.String(m.Signature.KeyRef)),
		)
	}

	doc := canonical.NewObject().
		SetString("generatedAt", m.GeneratedAt.UTC().Format(time.RFC3339)).
		Set("artifacts", ArtifactsValue(m.Artifacts)).
		SetString("overallDigest", m.OverallDigest).
		Set("signature", sig)

	if m.Producer != "" {
		doc.SetString("producer", m.Producer)
	}

	if m.RunID != "" {
		doc.SetString("runId", m.RunID)
	}

	return doc.Value()
}

// Bytes is the canonical serialization of the manifest as published.
func (m *Manifest) Bytes() ([]byte, error) {
	return canonical.Marshal(m.Value())
}

// Parse decodes a published manifest. The input must be in canonical form
// and carry only manifest members, so a parsed manifest re-serializes to
// exactly the bytes it was read from.
func Parse(data []byte) (*Manifest, error) {
	doc, err := canonical.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if again, err := canonical.Marshal(doc); err != nil || !bytes.Equal(again, data) {
		return nil, fmt.Errorf("%w: not in canonical form", ErrMalformedPayload)
	}

	m, err := fromValue(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if m.OverallDigest == "" {
		return nil, fmt.Errorf("%w: overallDigest is missing", ErrMalformedPayload)
	}

	if again, err := m.Bytes(); err != nil || !bytes.Equal(again, data) {
		return nil, fmt.Errorf("%w: unexpected members", ErrMalformedPayload)
	}

	return m, nil
}

func fromValue(doc canonical.Value) (*Manifest, error) {
	if doc.Kind() != canonical.KindObject {
		return nil, fmt.Errorf("document is %s, want object", doc.Kind())
	}

	var (
		m   Manifest
		err error
	)

	stamp, err := stringField(doc, "generatedAt", true)
	if err != nil {
		return nil, err
	}

	if m.GeneratedAt, err = time.Parse(time.RFC3339, stamp); err != nil {
		return nil, fmt.Errorf("generatedAt: %w", err)
	}

	if m.OverallDigest, err = stringField(doc, "overallDigest", false); err != nil {
		return nil, err
	}

	if m.Producer, err = stringField(doc, "producer", false); err != nil {
		return nil, err
	}

	if m.RunID, err = stringField(doc, "runId", false); err != nil {
		return nil, err
	}

	arts, ok := doc.Get("artifacts")
	if !ok || arts.Kind() != canonical.KindArray {
		return nil, errors.New("artifacts must be an array")
	}

	for i, item := range arts.Items() {
		e, err := entryFromValue(item)
		if err != nil {
			return nil, fmt.Errorf("artifacts[%d]: %w", i, err)
		}

		m.Artifacts = append(m.Artifacts, e)
	}

	sig, ok := doc.Get("signature")
	if !ok {
		return nil, errors.New("signature is missing")
	}

	if !sig.IsNull() {
		var s Signature

		for _, f := range []struct {
			key string
			dst *string
		}{{"algorithm", &s.Algorithm}, {"value", &s.Value}, {"keyRef", &s.KeyRef}} {
			if *f.dst, err = stringField(sig, f.key, true); err != nil {
				return nil, fmt.Errorf("signature: %w", err)
			}
		}

		m.Signature = &s
	}

	return &m, nil
}

func entryFromValue(v canonical.Value) (Entry, error) {
	var (
		e   Entry
		err error
	)

	if e.Name, err = stringField(v, "name", true); err != nil {
		return Entry{}, err
	}

	if e.Digest, err = stringField(v, "digest", true); err != nil {
		return Entry{}, err
	}

	n, ok := v.Get("length")
	if !ok {
		return Entry{}, errors.New("length is missing")
	}

	f, ok := n.AsNumber()
	if !ok || f < 0 || f != math.Trunc(f) {
		return Entry{}, errors.New("length must be a non-negative integer")
	}

	e.Length = int64(f)

	return e, nil
}

// stringField reads a string member of obj. An absent member is an error
// only when required.
func stringField(obj canonical.Value, key string, required bool) (string, error) {
	v, ok := obj.Get(key)
	if !ok {
		if required {
			return "", fmt.Errorf("%s is missing", key)
		}

		return "", nil
	}

	s, ok := v.AsString()
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}

	return s, nil
}
