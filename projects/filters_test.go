package projects_test

import (
	"database/sql"
	"testing"

	"github.com/goliatone/go-supply-cache/projects"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func newQueryDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })
	return db
}

func render(db *bun.DB, filters projects.Filters, preset projects.Preset) string {
	q := db.NewSelect().Model((*projects.Project)(nil))
	for _, criteria := range append(filters.Criteria(), preset.Criteria()) {
		q = criteria(q)
	}
	return q.String()
}

func TestFiltersCriteria(t *testing.T) {
	db := newQueryDB(t)

	tests := []struct {
		name     string
		filters  projects.Filters
		preset   projects.Preset
		contains []string
		excludes []string
	}{
		{
			name:     "defaults",
			preset:   projects.PresetFull,
			contains: []string{`FROM "projects" AS "p"`, `ORDER BY "p"."updated_at" DESC`, `"p"."supplier_id"`},
			excludes: []string{"WHERE", "LIMIT", "OFFSET"},
		},
		{
			name:     "equality filters",
			filters:  projects.Filters{Status: "active", Stage: "rfq"},
			preset:   projects.PresetFull,
			contains: []string{`"p"."status" = 'active'`, `"p"."stage" = 'rfq'`},
		},
		{
			name:     "search",
			filters:  projects.Filters{Search: "  Bracket "},
			preset:   projects.PresetFull,
			contains: []string{`LOWER("p".name) LIKE '%bracket%'`, `LOWER("p".description) LIKE '%bracket%'`},
		},
		{
			name:     "sort and paging",
			filters:  projects.Filters{Sort: "name", Order: "asc", Offset: 40, Limit: 20},
			preset:   projects.PresetFull,
			contains: []string{`ORDER BY "p"."name" ASC`, "LIMIT 20", "OFFSET 40"},
		},
		{
			name:     "minimal preset",
			preset:   projects.PresetMinimal,
			contains: []string{`"id"`, `"name"`, `"status"`},
			excludes: []string{"supplier_id", "budget"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := render(db, tt.filters, tt.preset)
			for _, fragment := range tt.contains {
				assert.Contains(t, query, fragment)
			}
			for _, fragment := range tt.excludes {
				assert.NotContains(t, query, fragment)
			}
		})
	}
}

func TestFiltersMap(t *testing.T) {
	a := projects.Filters{Status: "active", Order: "DESC", Search: " pump "}.Map()
	b := projects.Filters{Status: "active", Order: "desc", Search: "pump", Limit: 10}.Map()
	assert.Equal(t, a, b, "paging and formatting do not change the query fields")
}

func TestFiltersValidate(t *testing.T) {
	assert.NoError(t, projects.Filters{Sort: "name", Order: "asc", Limit: 50}.Validate())
	assert.Error(t, projects.Filters{Sort: "password"}.Validate())
	assert.Error(t, projects.Filters{Order: "sideways"}.Validate())
	assert.Error(t, projects.Filters{Limit: projects.MaxLimit + 1}.Validate())
	assert.Error(t, projects.Filters{Offset: -1}.Validate())
}

func TestPresetColumns(t *testing.T) {
	assert.Nil(t, projects.PresetFull.Columns())
	assert.Len(t, projects.PresetMinimal.Columns(), 3)
	assert.Subset(t, projects.PresetExtended.Columns(), projects.PresetBasic.Columns())
}
