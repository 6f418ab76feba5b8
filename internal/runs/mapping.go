package runs

import (
	"encoding/json"
	"net/url"

	"github.com/routeworks/escort/pkg/query"
	"github.com/routeworks/escort/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "runs", "r").
	Project("id", "ID").
	Project("application_id", "ApplicationID").
	Project("status", "Status").
	Project("started_at", "StartedAt").
	Project("completed_at", "CompletedAt").
	Project("duration_seconds", "DurationSeconds").
	Project("items_processed", "ItemsProcessed").
	Project("items_total", "ItemsTotal").
	Project("failure_reason", "FailureReason").
	Project("phases", "Phases").
	Project("errors", "Errors").
	Project("archived_at", "ArchivedAt")

var defaultSort = query.SortField{
	Field:      "CompletedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for run archive queries.
// Nil fields are ignored. Status uses exact matching; ApplicationID uses
// case-insensitive contains matching.
type Filters struct {
	Status        *string `json:"status,omitempty"`
	ApplicationID *string `json:"application_id,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereContains("ApplicationID", f.ApplicationID)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}

	if a := values.Get("application_id"); a != "" {
		f.ApplicationID = &a
	}

	return f
}

// scanRecord reads one archived run row. Phase details and errors are stored
// as jsonb and decoded into their domain types.
func scanRecord(s repository.Scanner) (Record, error) {
	var (
		r      Record
		phases []byte
		errs   []byte
	)

	err := s.Scan(
		&r.ID,
		&r.ApplicationID,
		&r.Status,
		&r.StartedAt,
		&r.CompletedAt,
		&r.DurationSeconds,
		&r.ItemsProcessed,
		&r.ItemsTotal,
		&r.FailureReason,
		&phases,
		&errs,
		&r.ArchivedAt,
	)
	if err != nil {
		return r, err
	}

	if len(phases) > 0 {
		if err := json.Unmarshal(phases, &r.Phases); err != nil {
			return r, err
		}
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &r.Errors); err != nil {
			return r, err
		}
	}

	return r, nil
}
