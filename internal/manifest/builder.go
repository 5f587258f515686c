package manifest

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tier0/pkg/digest"
)

// Signer is the optional signing capability. Sign receives the UTF-8 bytes
// of the overall digest string.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
	Algorithm() string
	KeyRef() string
}

// Artifact is one named output with its canonical bytes.
type Artifact struct {
	Name  string
	Bytes []byte
}

// Options configure a Builder.
type Options struct {
	Algorithm digest.Algorithm
	// Signer is nil when no signing key is configured.
	Signer   Signer
	Producer string
	Workers  int
}

// Builder assembles manifests.
type Builder struct {
	alg      digest.Algorithm
	signer   Signer
	producer string
	workers  int
}

// NewBuilder creates a builder. An empty algorithm means sha256.
func NewBuilder(opts Options) *Builder {
	if opts.Algorithm == "" {
		opts.Algorithm = digest.SHA256
	}

	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Builder{
		alg:      opts.Algorithm,
		signer:   opts.Signer,
		producer: opts.Producer,
		workers:  opts.Workers,
	}
}

// Build digests every artifact in parallel, then computes the overall digest
// over the ordered entry list and signs it when a signer is present.
func (b *Builder) Build(ctx context.Context, generatedAt time.Time, runID string, artifacts []Artifact) (*Manifest, error) {
	seen := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if seen[a.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, a.Name)
		}

		seen[a.Name] = true
	}

	entries := make([]Entry, len(artifacts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i := range artifacts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			a := artifacts[i]
			entries[i] = Entry{
				Name:   a.Name,
				Digest: b.alg.Sum(a.Bytes),
				Length: int64(len(a.Bytes)),
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	overall, err := OverallDigest(b.alg, entries)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		GeneratedAt:   generatedAt.UTC().Truncate(time.Second),
		Artifacts:     entries,
		OverallDigest: overall,
		Producer:      b.producer,
		RunID:         runID,
	}

	if b.signer == nil {
		return m, nil
	}

	sig, err := b.signer.Sign([]byte(overall))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	m.Signature = &Signature{
		Algorithm: b.signer.Algorithm(),
		Value:     base64.StdEncoding.EncodeToString(sig),
		KeyRef:    b.signer.KeyRef(),
	}

	return m, nil
}
