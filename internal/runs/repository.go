package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/routeworks/escort/internal/engine"
	"github.com/routeworks/escort/pkg/pagination"
	"github.com/routeworks/escort/pkg/query"
	"github.com/routeworks/escort/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a run archive repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "runs"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Record], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "ApplicationID", "FailureReason")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	records, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	result := pagination.NewPageResult(records, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Record, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	rec, err := repository.QueryOne(ctx, r.db, q, args, scanRecord)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &rec, nil
}

func (r *repo) Archive(ctx context.Context, result *engine.Result) (*Record, error) {
	phases, err := json.Marshal(result.Phases)
	if err != nil {
		return nil, fmt.Errorf("encode phase details: %w", err)
	}
	errs, err := json.Marshal(result.Errors)
	if err != nil {
		return nil, fmt.Errorf("encode run errors: %w", err)
	}

	var reason *string
	if result.FailureReason != "" {
		reason = &result.FailureReason
	}

	// A failed run can be relaunched and reach a new terminal outcome; the
	// upsert replaces the prior record so the archive reflects the latest one.
	q := `
		INSERT INTO runs(id, application_id, status, started_at, completed_at, duration_seconds, items_processed, items_total, failure_reason, phases, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			application_id = EXCLUDED.application_id,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			duration_seconds = EXCLUDED.duration_seconds,
			items_processed = EXCLUDED.items_processed,
			items_total = EXCLUDED.items_total,
			failure_reason = EXCLUDED.failure_reason,
			phases = EXCLUDED.phases,
			errors = EXCLUDED.errors,
			archived_at = now()
		RETURNING id, application_id, status, started_at, completed_at, duration_seconds, items_processed, items_total, failure_reason, phases, errors, archived_at`

	insertArgs := []any{
		result.RunID,
		result.ApplicationID,
		result.Status,
		result.StartedAt,
		result.CompletedAt,
		result.Duration.Seconds(),
		result.ItemsProcessed,
		result.ItemsTotal,
		reason,
		phases,
		errs,
	}

	rec, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Record, error) {
		return repository.QueryOne(ctx, tx, q, insertArgs, scanRecord)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info(
		"run archived",
		"run_id", rec.ID,
		"application_id", rec.ApplicationID,
		"status", rec.Status,
	)
	return &rec, nil
}
