package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/blueherons/stattracker/internal/catalog"
	"github.com/blueherons/stattracker/internal/store"
	"github.com/blueherons/stattracker/pkg/models"
)

// errMonotonicity aborts the submission transaction; the violation
// detail rides alongside in the closure.
var errMonotonicity = errors.New("monotonicity violation")

// Submit validates and commits a batch of stat submissions atomically.
//
// The batch's target date is values["date"] when present, today
// otherwise. Each value is coerced to a non-negative integer. Unless
// allowLower is set, a value lower than the committed value for the
// same (agent, date, stat) aborts the entire transaction and reports
// the offending stat with both values; no stat from the batch is
// committed. An empty batch commits a no-op transaction successfully.
func (e *Engine) Submit(ctx context.Context, agent models.Agent, values map[string]string, allowLower bool) (models.SubmitResult, error) {
	target := e.today()
	if ds, ok := values["date"]; ok && ds != "" {
		t, err := time.Parse("2006-01-02", ds)
		if err != nil {
			return models.SubmitResult{}, fmt.Errorf("invalid submission date %q: %w", ds, err)
		}
		target = models.DateOnly(t)
	}

	// Anchor date: the agent's earliest submission, today if none.
	anchor, ok, err := e.store.AnchorDate(ctx, agent.Name)
	if err != nil {
		return models.SubmitResult{}, err
	}
	if !ok {
		anchor = e.today()
	}
	timepoint := int(target.Sub(anchor).Hours()/24) + 1

	stats := make([]string, 0, len(values))
	for stat := range values {
		if stat != "date" {
			stats = append(stats, stat)
		}
	}
	sort.Strings(stats)

	var violation *models.MonotonicityViolation
	err = e.store.SubmitTx(ctx, func(tx store.DataTx) error {
		for _, stat := range stats {
			value := sanitizeValue(values[stat])
			dp := models.DataPoint{
				Agent:     agent.Name,
				Date:      target,
				Stat:      stat,
				Value:     value,
				Timepoint: timepoint,
			}

			if allowLower {
				if err := tx.UpsertDataPoint(ctx, dp, false); err != nil {
					return err
				}
				continue
			}

			current, exists, err := tx.CurrentValue(ctx, agent.Name, target, stat)
			if err != nil {
				return err
			}
			if exists && current > value {
				violation = &models.MonotonicityViolation{Stat: stat, Submitted: value, Current: current}
				return errMonotonicity
			}

			if err := tx.UpsertDataPoint(ctx, dp, true); err != nil {
				if errors.Is(err, store.ErrStaleWrite) {
					// A concurrent submitter raised the value between
					// our read and the guarded write. Re-read for the
					// diagnostic and reject the batch.
					current, _, _ = tx.CurrentValue(ctx, agent.Name, target, stat)
					violation = &models.MonotonicityViolation{Stat: stat, Submitted: value, Current: current}
					return errMonotonicity
				}
				return err
			}
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, errMonotonicity) && violation != nil {
			return models.SubmitResult{
				OK:        false,
				Violation: violation,
				Message: fmt.Sprintf("Stats cannot be updated. %s is lower than %s for %s.",
					formatNumber(violation.Submitted),
					formatNumber(violation.Current),
					catalog.DisplayName(violation.Stat)),
			}, nil
		}
		return models.SubmitResult{}, fmt.Errorf("submit stats: %w", err)
	}

	return models.SubmitResult{OK: true}, nil
}
