// Package normalizer turns raw register rows into normalized firms and offices.
package normalizer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"tier0/internal/logger"
	"tier0/internal/models"
)

// Processor normalizes a whole extract on a bounded worker pool.
type Processor struct {
	transformer *Transformer
	log         *logger.Logger
	workers     int
}

// NewProcessor creates a new processor instance.
func NewProcessor(settings Settings, workers int, log *logger.Logger) *Processor {
	if workers < 1 {
		workers = 1
	}

	if log == nil {
		log = logger.Discard()
	}

	return &Processor{
		transformer: NewTransformer(settings),
		log:         log,
		workers:     workers,
	}
}

// Transformer exposes the per-record normalizer.
func (p *Processor) Transformer() *Transformer {
	return p.transformer
}

// Process normalizes every firm. Records are computed concurrently and
// written into index slots, so the batch keeps the input order. The only
// error is cancellation of ctx.
func (p *Processor) Process(ctx context.Context, firms []models.RawFirm) (models.Batch, error) {
	records := make([]Record, len(firms))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range firms {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			records[i] = p.transformer.NormalizeRecord(i, firms[i])

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return models.Batch{}, err
	}

	batch := models.Batch{
		Firms:   make([]models.Firm, 0, len(records)),
		Offices: make([]models.Office, 0, models.OfficeCount(firms)),
	}

	for _, rec := range records {
		if rec.ExtraHeadOffices > 0 {
			p.log.Warn("multiple offices match the head office code; only the first is flagged",
				"firm", rec.Firm.Key(), "ignored", rec.ExtraHeadOffices)
		}

		batch.Firms = append(batch.Firms, rec.Firm)
		batch.Offices = append(batch.Offices, rec.Offices...)
	}

	p.log.Debug("normalized extract", "firms", len(batch.Firms), "offices", len(batch.Offices))

	return batch, nil
}
