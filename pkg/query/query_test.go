package query_test

import (
	"testing"

	"github.com/routeworks/escort/pkg/query"
)

func runsProjection() *query.ProjectionMap {
	return query.NewProjectionMap("public", "runs", "r").
		Project("id", "ID").
		Project("application_id", "ApplicationID").
		Project("status", "Status")
}

func TestProjectionFrom(t *testing.T) {
	p := runsProjection()
	if got := p.From(); got != "public.runs r" {
		t.Errorf("From: got %s, want public.runs r", got)
	}
}

func TestProjectionColumn(t *testing.T) {
	p := runsProjection()

	tests := []struct {
		name string
		view string
		want string
	}{
		{"mapped field", "Status", "r.status"},
		{"unmapped passthrough", "r.created_at", "r.created_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Column(tt.view); got != tt.want {
				t.Errorf("Column(%s): got %s, want %s", tt.view, got, tt.want)
			}
		})
	}
}

func TestProjectionColumns(t *testing.T) {
	p := runsProjection()
	want := "r.id, r.application_id, r.status"
	if got := p.Columns(); got != want {
		t.Errorf("Columns: got %s, want %s", got, want)
	}
}

func TestParseSortFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []query.SortField
	}{
		{"empty", "", nil},
		{"single ascending", "Status", []query.SortField{{Field: "Status"}}},
		{"single descending", "-Status", []query.SortField{{Field: "Status", Descending: true}}},
		{
			"mixed with whitespace",
			"Status, -ApplicationID",
			[]query.SortField{
				{Field: "Status"},
				{Field: "ApplicationID", Descending: true},
			},
		},
		{"skips empty segments", "Status,,", []query.SortField{{Field: "Status"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := query.ParseSortFields(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("length: got %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("field %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBuildCountNoConditions(t *testing.T) {
	b := query.NewBuilder(runsProjection())
	sql, args := b.BuildCount()

	if sql != "SELECT COUNT(*) FROM public.runs r" {
		t.Errorf("sql: got %s", sql)
	}
	if len(args) != 0 {
		t.Errorf("args: got %d, want 0", len(args))
	}
}

func TestBuildCountWithConditions(t *testing.T) {
	status := "failed"
	b := query.NewBuilder(runsProjection()).
		WhereEquals("Status", &status)

	sql, args := b.BuildCount()

	want := "SELECT COUNT(*) FROM public.runs r WHERE r.status = $1"
	if sql != want {
		t.Errorf("sql: got %s, want %s", sql, want)
	}
	if len(args) != 1 {
		t.Fatalf("args: got %d, want 1", len(args))
	}
}

func TestBuildPage(t *testing.T) {
	b := query.NewBuilder(runsProjection(), query.SortField{Field: "Status", Descending: true})
	sql, args := b.BuildPage(2, 10)

	want := "SELECT r.id, r.application_id, r.status FROM public.runs r" +
		" ORDER BY r.status DESC LIMIT 10 OFFSET 10"
	if sql != want {
		t.Errorf("sql: got %s, want %s", sql, want)
	}
	if len(args) != 0 {
		t.Errorf("args: got %d, want 0", len(args))
	}
}

func TestBuildPageExplicitSortOverridesDefault(t *testing.T) {
	b := query.NewBuilder(runsProjection(), query.SortField{Field: "Status", Descending: true}).
		OrderByFields([]query.SortField{{Field: "ApplicationID"}})

	sql, _ := b.BuildPage(1, 5)

	want := "SELECT r.id, r.application_id, r.status FROM public.runs r" +
		" ORDER BY r.application_id ASC LIMIT 5 OFFSET 0"
	if sql != want {
		t.Errorf("sql: got %s, want %s", sql, want)
	}
}

func TestBuildSingle(t *testing.T) {
	b := query.NewBuilder(runsProjection())
	sql, args := b.BuildSingle("ID", "abc-123")

	want := "SELECT r.id, r.application_id, r.status FROM public.runs r WHERE r.id = $1"
	if sql != want {
		t.Errorf("sql: got %s, want %s", sql, want)
	}
	if len(args) != 1 || args[0] != "abc-123" {
		t.Errorf("args: got %v, want [abc-123]", args)
	}
}

func TestWhereContains(t *testing.T) {
	value := "PRM-2205"
	b := query.NewBuilder(runsProjection()).
		WhereContains("ApplicationID", &value)

	sql, args := b.BuildCount()

	want := "SELECT COUNT(*) FROM public.runs r WHERE r.application_id ILIKE $1"
	if sql != want {
		t.Errorf("sql: got %s, want %s", sql, want)
	}
	if len(args) != 1 || args[0] != "%PRM-2205%" {
		t.Errorf("args: got %v", args)
	}
}

func TestWhereContainsNilSkipped(t *testing.T) {
	b := query.NewBuilder(runsProjection()).
		WhereContains("ApplicationID", nil)

	sql, _ := b.BuildCount()
	if sql != "SELECT COUNT(*) FROM public.runs r" {
		t.Errorf("nil filter should be skipped: got %s", sql)
	}
}

func TestWhereEqualsNilPointerSkipped(t *testing.T) {
	var status *string
	b := query.NewBuilder(runsProjection()).
		WhereEquals("Status", status)

	sql, _ := b.BuildCount()
	if sql != "SELECT COUNT(*) FROM public.runs r" {
		t.Errorf("nil pointer should be skipped: got %s", sql)
	}
}

func TestWhereSearchMultipleFields(t *testing.T) {
	search := "timeout"
	b := query.NewBuilder(runsProjection()).
		WhereSearch(&search, "ApplicationID", "Status")

	sql, args := b.BuildCount()

	want := "SELECT COUNT(*) FROM public.runs r" +
		" WHERE (r.application_id ILIKE $1 OR r.status ILIKE $2)"
	if sql != want {
		t.Errorf("sql: got %s, want %s", sql, want)
	}
	if len(args) != 2 {
		t.Fatalf("args: got %d, want 2", len(args))
	}
	if args[0] != "%timeout%" || args[1] != "%timeout%" {
		t.Errorf("args: got %v", args)
	}
}

func TestParameterNumberingAcrossConditions(t *testing.T) {
	status := "failed"
	app := "PRM"
	search := "ocr"
	b := query.NewBuilder(runsProjection()).
		WhereEquals("Status", &status).
		WhereContains("ApplicationID", &app).
		WhereSearch(&search, "ApplicationID", "Status")

	sql, args := b.BuildCount()

	want := "SELECT COUNT(*) FROM public.runs r" +
		" WHERE r.status = $1 AND r.application_id ILIKE $2" +
		" AND (r.application_id ILIKE $3 OR r.status ILIKE $4)"
	if sql != want {
		t.Errorf("sql: got %s, want %s", sql, want)
	}
	if len(args) != 4 {
		t.Errorf("args: got %d, want 4", len(args))
	}
}
