package runs

import (
	"context"

	"github.com/google/uuid"

	"github.com/routeworks/escort/internal/engine"
	"github.com/routeworks/escort/pkg/pagination"
)

// System defines the public contract for run archive operations.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Record], error)

	Find(ctx context.Context, id uuid.UUID) (*Record, error)

	// Archive persists a terminal run outcome. Archiving an ID again, as
	// happens when a failed run is relaunched to completion, replaces the
	// earlier record.
	Archive(ctx context.Context, result *engine.Result) (*Record, error)
}
