package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const contributionsTable = "contributions"

var contributionStruct = database.NewStruct(new(models.Contribution))

// ContributionRepository handles database operations for contributions
type ContributionRepository struct {
	*Repository
}

// NewContributionRepository creates a new contribution repository
func NewContributionRepository(db database.DB, logger ectologger.Logger) *ContributionRepository {
	return &ContributionRepository{
		Repository: NewRepository(db, logger),
	}
}

// Insert writes a committed contribution inside the caller's transaction. The
// ledger guards the percentage invariant before calling this.
func (r *ContributionRepository) Insert(ctx context.Context, tx database.Tx, contribution *models.Contribution) error {
	ctx, span := tracing.StartSpan(ctx, "ContributionRepository.Insert")
	defer span.End()

	if contribution.ID == uuid.Nil {
		contribution.ID = uuid.New()
	}
	if contribution.Status == "" {
		contribution.Status = models.ContributionStatusCommitted
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(contributionsTable).
		Cols("id", "request_id", "supplier_id", "percentage", "status", "created_at", "updated_at").
		Values(contribution.ID, contribution.RequestID, contribution.SupplierID, contribution.Percentage,
			contribution.Status, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := tx.QueryRowContext(ctx, query, args...).Scan(&contribution.CreatedAt, &contribution.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contribution_id": contribution.ID,
			"request_id":      contribution.RequestID,
		}).Error("failed to create contribution")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create contribution")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"contribution_id": contribution.ID,
		"request_id":      contribution.RequestID,
	}).Debugf("Created %s", contributionsTable)
	return nil
}

// GetByID retrieves a contribution by ID
func (r *ContributionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contribution, error) {
	ctx, span := tracing.StartSpan(ctx, "ContributionRepository.GetByID")
	defer span.End()

	sb := contributionStruct.SelectFrom(contributionsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var contribution models.Contribution
	err := r.DB().GetContext(ctx, &contribution, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "contribution %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contribution_id": id,
		}).Error("failed to get contribution by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get contribution by ID")
	}

	return &contribution, nil
}

// ListByRequest retrieves every contribution against a request, oldest first
func (r *ContributionRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Contribution, error) {
	ctx, span := tracing.StartSpan(ctx, "ContributionRepository.ListByRequest")
	defer span.End()

	sb := contributionStruct.SelectFrom(contributionsTable)
	sb.Where(sb.Equal("request_id", requestID))
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()
	var contributions []models.Contribution
	err := r.DB().SelectContext(ctx, &contributions, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": requestID,
		}).Error("failed to list contributions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contributions")
	}

	return contributions, nil
}

// SumCommitted computes the committed percentage total for a request inside
// the caller's transaction. Run after GetByIDForUpdate so the sum cannot move
// underneath the invariant check.
func (r *ContributionRepository) SumCommitted(ctx context.Context, tx database.Tx, requestID uuid.UUID) (float64, error) {
	ctx, span := tracing.StartSpan(ctx, "ContributionRepository.SumCommitted")
	defer span.End()

	query := `
		SELECT COALESCE(SUM(percentage), 0)
		FROM contributions
		WHERE request_id = $1 AND status = 'committed'`

	var total float64
	err := tx.GetContext(ctx, &total, query, requestID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": requestID,
		}).Error("failed to sum committed contributions")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to sum committed contributions")
	}

	return total, nil
}

// RequestRecede marks a committed contribution as awaiting admin approval to
// withdraw. The row stays committed so it keeps counting toward the target.
func (r *ContributionRepository) RequestRecede(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ContributionRepository.RequestRecede")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(contributionsTable).
		Set(
			ub.Assign("recede_requested_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("id", id),
			ub.Equal("status", models.ContributionStatusCommitted),
			ub.IsNull("recede_requested_at"),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contribution_id": id,
		}).Error("failed to request recede")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to request recede")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to request recede")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "contribution %s is not committed or recede is already pending", id)
	}

	return nil
}

// ApproveRecede finalizes a pending recede, excluding the contribution from
// future percentage sums
func (r *ContributionRepository) ApproveRecede(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ContributionRepository.ApproveRecede")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(contributionsTable).
		Set(
			ub.Assign("status", models.ContributionStatusReceded),
			ub.Assign("receded_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("id", id),
			ub.Equal("status", models.ContributionStatusCommitted),
			ub.IsNotNull("recede_requested_at"),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contribution_id": id,
		}).Error("failed to approve recede")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to approve recede")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to approve recede")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "contribution %s has no pending recede", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"contribution_id": id,
	}).Infof("Approved recede on %s", contributionsTable)
	return nil
}
