// Package pipeline runs the register pipeline end to end: read the extract,
// normalize, validate, build the graph, seal the manifest and publish the
// whole output set at once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tier0/internal/config"
	"tier0/internal/graph"
	"tier0/internal/ledger"
	"tier0/internal/logger"
	"tier0/internal/manifest"
	"tier0/internal/metrics"
	"tier0/internal/models"
	"tier0/internal/normalizer"
	"tier0/internal/publish"
	"tier0/internal/report"
	"tier0/internal/signer"
	"tier0/internal/source"
	"tier0/internal/validator"
	"tier0/pkg/canonical"
	"tier0/pkg/digest"
)

// Options carry the run's collaborators. Zero values are usable.
type Options struct {
	Log *logger.Logger
	// Lookup reads the environment. Defaults to os.LookupEnv.
	Lookup config.LookupFunc
	// Now is the clock used when SOURCE_DATE_EPOCH is unset.
	Now     func() time.Time
	Metrics *metrics.Metrics
	// RunID overrides the generated run id.
	RunID string
	// NormalizeOnly stops after validation and publishes the raw copy,
	// the normalized snapshot and the reports.
	NormalizeOnly bool
}

// Result describes a completed run.
type Result struct {
	RunID       string
	GeneratedAt time.Time
	Records     int
	// Dropped lists source rows that never reached validation.
	Dropped     []models.DroppedRow
	Counts      models.Counts
	Rejected    []models.Verdict
	// Manifest is nil for normalize-only runs.
	Manifest *manifest.Manifest
	Written  []string
}

type runner struct {
	cfg     *config.Config
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics
}

// Run executes one pipeline pass. Nothing is written until every output
// has been built; on error no output file is touched.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}

	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &runner{cfg: cfg, opts: opts, log: opts.Log, metrics: opts.Metrics}

	return r.run(ctx)
}

func (r *runner) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	r.metrics.ObserveStage(name, elapsed)

	if err != nil {
		return &StageError{Stage: name, Err: err}
	}

	r.log.Debug("stage complete", "stage", name, "duration", elapsed)

	return nil
}

func (r *runner) run(ctx context.Context) (*Result, error) {
	cfg := r.cfg

	var (
		alg         digest.Algorithm
		generatedAt time.Time
	)

	err := r.stage(StageConfig, func() error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}

		var err error

		alg, err = digest.ParseAlgorithm(cfg.Manifest.DigestAlgorithm)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}

		epoch, fixed, err := config.SourceDateEpoch(r.opts.Lookup)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}

		generatedAt = r.opts.Now()
		if fixed {
			generatedAt = epoch
		}

		generatedAt = generatedAt.UTC().Truncate(time.Second)

		return nil
	})
	if err != nil {
		return nil, err
	}

	var rules *validator.RuleSet

	err = r.stage(StageRules, func() error {
		var err error

		rules, err = validator.LoadRules(cfg.RulesFile)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	var sig manifest.Signer

	if !r.opts.NormalizeOnly {
		err = r.stage(StageSigning, func() error {
			s, err := r.loadSigner()
			if s != nil {
				sig = s
			}

			return err
		})
		if err != nil {
			return nil, err
		}
	}

	runID := r.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	log := r.log.With("run_id", runID)
	log.Info("run started", "input", cfg.InputFile, "generated_at", generatedAt.Format(time.RFC3339))

	var ext *source.Extract

	err = r.stage(StageSource, func() error {
		var err error

		ext, err = source.ReadFile(cfg.InputFile)

		return err
	})
	if err != nil {
		return nil, err
	}

	if ext.CountMismatch() {
		log.Warn("declared record count differs from records read", "declared", ext.Count, "read", len(ext.Firms))
	}

	for _, d := range ext.Dropped {
		log.Warn("source row dropped", "location", d.Location, "reason", d.Reason)
	}

	r.metrics.AddRecords(len(ext.Firms))

	var batch models.Batch

	err = r.stage(StageNormalize, func() error {
		var err error

		proc := normalizer.NewProcessor(normalizer.Settings{HeadOfficeCode: cfg.HeadOfficeCode}, cfg.Workers, log.Stage(StageNormalize))
		batch, err = proc.Process(ctx, ext.Firms)

		return err
	})
	if err != nil {
		return nil, err
	}

	var part models.Partition

	err = r.stage(StageValidate, func() error {
		var err error

		part, err = validator.New(rules, cfg.Workers, log.Stage(StageValidate)).Partition(ctx, batch)

		return err
	})
	if err != nil {
		return nil, err
	}

	r.metrics.ObserveCounts(part.Counts)

	set := publish.NewSet()

	raw, err := ext.RawJSON()
	if err != nil {
		return nil, &StageError{Stage: StageSource, Err: err}
	}

	firmsSnap, officesSnap, err := report.Snapshot(part.Accepted)
	if err != nil {
		return nil, &StageError{Stage: StageReport, Err: err}
	}

	for _, f := range []struct {
		path string
		data []byte
	}{
		{filepath.Join(cfg.RawOutputDir, source.RawCopyName(generatedAt)), raw},
		{filepath.Join(cfg.NormalizedOutputDir, report.FirmsSnapshot), firmsSnap},
		{filepath.Join(cfg.NormalizedOutputDir, report.OfficesSnapshot), officesSnap},
	} {
		if err := set.Add(f.path, f.data); err != nil {
			return nil, &StageError{Stage: StagePublish, Err: err}
		}
	}

	res := &Result{
		RunID:       runID,
		GeneratedAt: generatedAt,
		Records:     len(ext.Firms),
		Dropped:     ext.Dropped,
		Counts:      part.Counts,
		Rejected:    part.Rejected(),
	}

	var manifestBytes []byte

	if !r.opts.NormalizeOnly {
		var artifacts []manifest.Artifact

		err = r.stage(StageGraph, func() error {
			var err error

			artifacts, err = r.buildArtifacts(part.Accepted, generatedAt, log)

			return err
		})
		if err != nil {
			return nil, err
		}

		err = r.stage(StageManifest, func() error {
			builder := manifest.NewBuilder(manifest.Options{
				Algorithm: alg,
				Signer:    sig,
				Producer:  cfg.Manifest.Producer,
				Workers:   cfg.Workers,
			})

			m, err := builder.Build(ctx, generatedAt, runID, artifacts)
			if err != nil {
				if errors.Is(err, manifest.ErrSigningFailed) {
					return fmt.Errorf("%w: %w", ErrSigningKey, err)
				}

				return err
			}

			manifestBytes, err = m.Bytes()
			if err != nil {
				return err
			}

			res.Manifest = m

			return nil
		})
		if err != nil {
			return nil, err
		}

		if err := set.Add(cfg.JSONLDFirms, artifacts[0].Bytes); err != nil {
			return nil, &StageError{Stage: StagePublish, Err: err}
		}

		if err := set.Add(cfg.JSONLDDataset, artifacts[1].Bytes); err != nil {
			return nil, &StageError{Stage: StagePublish, Err: err}
		}
	}

	err = r.stage(StageReport, func() error {
		return r.addReports(set, res, part.Verdicts)
	})
	if err != nil {
		return nil, err
	}

	if manifestBytes != nil {
		if err := set.Add(cfg.JSONLDManifest, manifestBytes); err != nil {
			return nil, &StageError{Stage: StagePublish, Err: err}
		}
	}

	err = r.stage(StagePublish, func() error {
		var err error

		res.Written, err = set.Commit()

		return err
	})
	if err != nil {
		return nil, err
	}

	r.metrics.AddPublished(len(res.Written))

	if res.Manifest != nil && cfg.Ledger.Path != "" {
		err = r.stage(StageLedger, func() error {
			return r.record(ctx, res)
		})
		if err != nil {
			return res, err
		}
	}

	signed := res.Manifest != nil && res.Manifest.Signed()
	log.Info("run complete",
		"records", res.Records,
		"accepted", part.Counts.FirmsAccepted+part.Counts.OfficesAccepted,
		"rejected", part.Counts.FirmsRejected+part.Counts.OfficesRejected,
		"files", len(res.Written),
		"signed", signed,
	)

	r.metrics.MarkSuccess(generatedAt)

	if err := r.metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		log.Warn("metrics not written", "error", err)
	}

	return res, nil
}

// loadSigner returns nil without error when no key is configured.
func (r *runner) loadSigner() (*signer.KeySigner, error) {
	opts := signer.LoadOptions{
		PEM:             r.cfg.SigningKeyPEM(r.opts.Lookup),
		KeyFile:         r.cfg.Signing.KeyFile,
		AgeIdentityFile: r.cfg.Signing.AgeIdentityFile,
		Algorithm:       r.cfg.Signing.Algorithm,
		KeyRef:          r.cfg.Signing.KeyRef,
	}

	if !opts.Configured() {
		r.log.Warn("no signing key configured; manifest will be unsigned", "signed", false)
		return nil, nil
	}

	s, err := signer.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningKey, err)
	}

	r.log.Info("signing key loaded", "algorithm", s.Algorithm(), "key_ref", s.KeyRef())

	return s, nil
}

// buildArtifacts returns the firms document followed by the dataset
// document, both in canonical form.
func (r *runner) buildArtifacts(accepted models.Batch, generatedAt time.Time, log *logger.Logger) ([]manifest.Artifact, error) {
	builder := graph.NewBuilder(graph.Settings{
		PublicIDBase:    r.cfg.PublicIDBase,
		PublicFilesBase: r.cfg.PublicFilesBase,
		DatasetID:       r.cfg.Manifest.DatasetID,
		FirmsFile:       filepath.Base(r.cfg.JSONLDFirms),
	})

	g, err := builder.Build(accepted)
	if err != nil {
		if errors.Is(err, graph.ErrIdentifierCollision) {
			return nil, fmt.Errorf("%w: %w", ErrIdentifierCollision, err)
		}

		return nil, err
	}

	log.Info("graph built", "nodes", g.Len(), "by_type", g.CountByType())

	firms, err := canonical.Marshal(g.FirmsDocument())
	if err != nil {
		return nil, fmt.Errorf("canonicalizing firms document: %w", err)
	}

	dataset, err := canonical.Marshal(g.DatasetDocument(generatedAt))
	if err != nil {
		return nil, fmt.Errorf("canonicalizing dataset document: %w", err)
	}

	return []manifest.Artifact{
		{Name: filepath.Base(r.cfg.JSONLDFirms), Bytes: firms},
		{Name: filepath.Base(r.cfg.JSONLDDataset), Bytes: dataset},
	}, nil
}

func (r *runner) addReports(set *publish.Set, res *Result, verdicts []models.Verdict) error {
	summary := &report.Summary{
		RunID:       res.RunID,
		GeneratedAt: res.GeneratedAt,
		Records:     res.Records,
		Dropped:     res.Dropped,
		Counts:      res.Counts,
		Verdicts:    verdicts,
	}

	if res.Manifest != nil {
		summary.OverallDigest = res.Manifest.OverallDigest
		summary.Signed = res.Manifest.Signed()
	}

	if path := r.cfg.Report.Markdown; path != "" {
		if err := set.Add(path, []byte(report.Markdown(summary))); err != nil {
			return err
		}
	}

	if path := r.cfg.Report.XLSX; path != "" {
		data, err := report.XLSX(summary)
		if err != nil {
			return err
		}

		if err := set.Add(path, data); err != nil {
			return err
		}
	}

	return nil
}

func (r *runner) record(ctx context.Context, res *Result) error {
	l, err := ledger.Open(r.cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	return l.Record(ctx, res.Manifest, res.Counts, res.Rejected)
}
