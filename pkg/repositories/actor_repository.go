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

const actorsTable = "actors"

var actorStruct = database.NewStruct(new(models.Actor))

// ActorRepository handles database operations for actors
type ActorRepository struct {
	*Repository
}

// NewActorRepository creates a new actor repository
func NewActorRepository(db database.DB, logger ectologger.Logger) *ActorRepository {
	return &ActorRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new actor
func (r *ActorRepository) Create(ctx context.Context, actor *models.Actor) error {
	ctx, span := tracing.StartSpan(ctx, "ActorRepository.Create")
	defer span.End()

	if actor.ID == uuid.Nil {
		actor.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(actorsTable).
		Cols("id", "name", "email", "role", "permissions", "is_active", "created_at", "updated_at").
		Values(actor.ID, actor.Name, actor.Email, actor.Role, actor.Permissions, actor.IsActive,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&actor.CreatedAt, &actor.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"actor_id": actor.ID,
		}).Error("failed to create actor")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create actor")
	}

	return nil
}

// GetByID retrieves an actor by ID
func (r *ActorRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "ActorRepository.GetByID")
	defer span.End()

	sb := actorStruct.SelectFrom(actorsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var actor models.Actor
	err := r.DB().GetContext(ctx, &actor, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "actor %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"actor_id": id,
		}).Error("failed to get actor by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get actor by ID")
	}

	return &actor, nil
}

// ListActiveAdmins retrieves every active admin, the fanout audience for SLA
// batch summaries
func (r *ActorRepository) ListActiveAdmins(ctx context.Context) ([]models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "ActorRepository.ListActiveAdmins")
	defer span.End()

	sb := actorStruct.SelectFrom(actorsTable)
	sb.Where(sb.Equal("role", models.RoleAdmin), sb.Equal("is_active", true))
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()
	var admins []models.Actor
	err := r.DB().SelectContext(ctx, &admins, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list active admins")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list active admins")
	}

	return admins, nil
}
