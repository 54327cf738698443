// Package ledger tracks percentage-based funding commitments per request and
// enforces the 100% cap under concurrent writers.
package ledger

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// percentEpsilon covers float64 rounding in the cap comparison. The column
// is NUMERIC(5,2) so stored sums are exact, but the pledged value and the
// remaining capacity are both float64 here.
const percentEpsilon = 1e-6

// RequestStore is the request access the ledger needs
type RequestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	GetByIDForUpdate(ctx context.Context, tx database.Tx, id uuid.UUID) (*models.Request, error)
}

// ContributionStore is the contribution access the ledger needs
type ContributionStore interface {
	Insert(ctx context.Context, tx database.Tx, contribution *models.Contribution) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contribution, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Contribution, error)
	SumCommitted(ctx context.Context, tx database.Tx, requestID uuid.UUID) (float64, error)
	RequestRecede(ctx context.Context, id uuid.UUID) error
	ApproveRecede(ctx context.Context, id uuid.UUID) error
}

// Ledger owns the contribution lifecycle for requests
type Ledger struct {
	db            database.DB
	requests      RequestStore
	contributions ContributionStore
	logger        ectologger.Logger
}

// NewLedger creates a new contribution ledger
func NewLedger(db database.DB, requests RequestStore, contributions ContributionStore, logger ectologger.Logger) *Ledger {
	return &Ledger{
		db:            db,
		requests:      requests,
		contributions: contributions,
		logger:        logger,
	}
}

// Create commits a supplier's percentage pledge against a request. The check
// and insert run under a row lock on the request so two concurrent pledges
// cannot jointly push the committed total past 100%.
func (l *Ledger) Create(ctx context.Context, requestID uuid.UUID, supplierID uuid.UUID, percentage float64) (*models.ContributionStats, error) {
	ctx, span := tracing.StartSpan(ctx, "Ledger.Create")
	defer span.End()

	start := time.Now()

	if percentage <= 0 || percentage > 100 {
		metrics.RecordContribution("invalid", time.Since(start).Seconds())
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "percentage must be in (0, 100], got %.2f", percentage)
	}

	txCtx, tx, err := l.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	// Rollback with the pre-tx context so it is a real rollback on error
	// paths, and a no-op when an outer caller owns the transaction.
	defer tx.Rollback(ctx)

	request, err := l.requests.GetByIDForUpdate(txCtx, tx, requestID)
	if err != nil {
		metrics.RecordContribution("error", time.Since(start).Seconds())
		return nil, err
	}

	if request.Status.IsTerminal() {
		metrics.RecordContribution("conflict", time.Since(start).Seconds())
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "request %s is %s and no longer accepts contributions", requestID, request.Status)
	}

	total, err := l.contributions.SumCommitted(txCtx, tx, requestID)
	if err != nil {
		metrics.RecordContribution("error", time.Since(start).Seconds())
		return nil, err
	}

	remaining := 100 - total
	if percentage > remaining+percentEpsilon {
		metrics.RecordContribution("exceeds_remaining", time.Since(start).Seconds())
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity,
			"percentage %.2f exceeds remaining %.2f for request %s", percentage, remaining, requestID)
	}

	contribution := &models.Contribution{
		RequestID:  requestID,
		SupplierID: supplierID,
		Percentage: percentage,
		Status:     models.ContributionStatusCommitted,
	}
	if err := l.contributions.Insert(txCtx, tx, contribution); err != nil {
		metrics.RecordContribution("error", time.Since(start).Seconds())
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		metrics.RecordContribution("error", time.Since(start).Seconds())
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit contribution")
	}

	metrics.RecordContribution("committed", time.Since(start).Seconds())
	l.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id":      requestID,
		"contribution_id": contribution.ID,
		"percentage":      percentage,
	}).Info("Contribution committed")

	return l.Stats(ctx, requestID)
}

// Stats returns the funding aggregate for a request. Sums cover committed
// contributions only; receded and pending rows appear in the list but not
// the totals.
func (l *Ledger) Stats(ctx context.Context, requestID uuid.UUID) (*models.ContributionStats, error) {
	ctx, span := tracing.StartSpan(ctx, "Ledger.Stats")
	defer span.End()

	if _, err := l.requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}

	contributions, err := l.contributions.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	stats := &models.ContributionStats{
		RequestID:     requestID,
		Contributions: contributions,
	}
	for _, c := range contributions {
		if c.Status == models.ContributionStatusCommitted {
			stats.TotalPercentage += c.Percentage
			stats.ContributionCount++
		}
	}
	stats.RemainingPercentage = 100 - stats.TotalPercentage

	return stats, nil
}

// Recede records a supplier's withdrawal request. The contribution stays
// committed, and keeps counting toward the 100% target, until an admin
// approves; a supplier cannot unilaterally free capacity that may already
// have triggered allocation.
func (l *Ledger) Recede(ctx context.Context, contributionID uuid.UUID) (*models.Contribution, error) {
	ctx, span := tracing.StartSpan(ctx, "Ledger.Recede")
	defer span.End()

	if err := l.contributions.RequestRecede(ctx, contributionID); err != nil {
		return nil, err
	}

	return l.contributions.GetByID(ctx, contributionID)
}

// ApproveRecede finalizes a pending withdrawal, excluding the contribution
// from future sums
func (l *Ledger) ApproveRecede(ctx context.Context, contributionID uuid.UUID) (*models.Contribution, error) {
	ctx, span := tracing.StartSpan(ctx, "Ledger.ApproveRecede")
	defer span.End()

	if err := l.contributions.ApproveRecede(ctx, contributionID); err != nil {
		return nil, err
	}

	return l.contributions.GetByID(ctx, contributionID)
}
