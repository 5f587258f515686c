// Package validator applies a declarative rule set to normalized firms and
// offices and partitions a batch into accepted entities and verdicts.
package validator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"tier0/internal/logger"
	"tier0/internal/models"
)

// ReasonOwnerRejected is added to every office of a rejected firm.
const ReasonOwnerRejected = FieldFirmSraID + ": owning firm rejected"

// Validator evaluates a compiled rule set.
type Validator struct {
	rules   *RuleSet
	log     *logger.Logger
	workers int
}

// New creates a validator over rules.
func New(rules *RuleSet, workers int, log *logger.Logger) *Validator {
	if workers < 1 {
		workers = 1
	}

	if log == nil {
		log = logger.Discard()
	}

	return &Validator{rules: rules, log: log, workers: workers}
}

// ValidateFirm evaluates every firm rule. It never stops at the first
// failure.
func (v *Validator) ValidateFirm(f *models.Firm) models.Verdict {
	reasons := v.evaluate(models.KindFirm, FieldSraID, f.IDCondition, f.RawID, func(name string) any {
		val, _ := firmField(f, name)
		return val
	})

	return verdict(models.KindFirm, f.Key(), reasons)
}

// ValidateOffice evaluates every office rule.
func (v *Validator) ValidateOffice(o *models.Office) models.Verdict {
	reasons := v.evaluate(models.KindOffice, FieldOfficeID, o.IDCondition, o.RawID, func(name string) any {
		val, _ := officeField(o, name)
		return val
	})

	return verdict(models.KindOffice, o.Key(), reasons)
}

func verdict(kind models.EntityKind, key string, reasons []string) models.Verdict {
	return models.Verdict{Kind: kind, Key: key, Reasons: reasons, Accepted: len(reasons) == 0}
}

func (v *Validator) evaluate(kind models.EntityKind, idField string, cond models.IDCondition, rawID string, get func(string) any) []string {
	var reasons []string

	switch cond {
	case models.IDMissing:
		reasons = append(reasons, idField+": required field missing")
	case models.IDMalformed:
		reasons = append(reasons, fmt.Sprintf("%s: malformed identifier %q", idField, rawID))
	case models.IDPresent:
	}

	for _, rule := range v.rules.rules[kind] {
		if rule.Field == idField && cond != models.IDPresent {
			continue
		}

		if reason, ok := check(rule, get(rule.Field)); !ok && !slices.Contains(reasons, reason) {
			reasons = append(reasons, reason)
		}
	}

	return reasons
}

// check applies one rule. Only the presence check fails on an absent value.
func check(rule Rule, value any) (string, bool) {
	if _, missing := value.(absent); missing {
		if rule.Check == CheckPresence {
			return rule.Field + ": required field missing", false
		}

		return "", true
	}

	switch rule.Check {
	case CheckPresence:
		return "", true
	case CheckNonEmpty:
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return rule.Field + ": must not be empty", false
		}
	case CheckTypeString:
		if _, ok := value.(string); !ok {
			return rule.Field + ": must be a string", false
		}
	case CheckTypeEnum:
		s, ok := value.(string)
		if !ok {
			return rule.Field + ": must be a string", false
		}

		if !slices.Contains(rule.Values, s) {
			return fmt.Sprintf("%s: value %q not in %v", rule.Field, s, rule.Values), false
		}
	case CheckPattern:
		s, ok := value.(string)
		if !ok {
			return rule.Field + ": must be a string", false
		}

		if !rule.Pattern.MatchString(s) {
			return fmt.Sprintf("%s: value %q does not match %s", rule.Field, s, rule.Pattern), false
		}
	}

	return "", true
}

// Partition validates the whole batch. Every firm and office receives
// exactly one verdict, firms first, each group in batch order. Offices of a
// rejected firm are rejected too. Accepted keeps the batch order.
func (v *Validator) Partition(ctx context.Context, batch models.Batch) (models.Partition, error) {
	firmVerdicts := make([]models.Verdict, len(batch.Firms))
	officeVerdicts := make([]models.Verdict, len(batch.Offices))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)

	for i := range batch.Firms {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			firmVerdicts[i] = v.ValidateFirm(&batch.Firms[i])

			return nil
		})
	}

	for i := range batch.Offices {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			officeVerdicts[i] = v.ValidateOffice(&batch.Offices[i])

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return models.Partition{}, err
	}

	firmAccepted := make(map[int]bool, len(batch.Firms))

	var part models.Partition

	for i, fv := range firmVerdicts {
		firm := batch.Firms[i]
		firmAccepted[firm.Index] = fv.Accepted

		if fv.Accepted {
			part.Accepted.Firms = append(part.Accepted.Firms, firm)
			part.Counts.FirmsAccepted++
		} else {
			part.Counts.FirmsRejected++
		}

		part.Verdicts = append(part.Verdicts, fv)
	}

	for i, ov := range officeVerdicts {
		office := batch.Offices[i]

		if !firmAccepted[office.FirmIndex] {
			ov.Reasons = append(ov.Reasons, ReasonOwnerRejected)
			ov.Accepted = false
		}

		if ov.Accepted {
			part.Accepted.Offices = append(part.Accepted.Offices, office)
			part.Counts.OfficesAccepted++
		} else {
			part.Counts.OfficesRejected++
		}

		part.Verdicts = append(part.Verdicts, ov)
	}

	v.log.Info("validation complete",
		"firms_accepted", part.Counts.FirmsAccepted,
		"firms_rejected", part.Counts.FirmsRejected,
		"offices_accepted", part.Counts.OfficesAccepted,
		"offices_rejected", part.Counts.OfficesRejected)

	return part, nil
}
