package projects

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Preset selects how many columns a read loads.
type Preset string

const (
	PresetMinimal  Preset = "minimal"
	PresetBasic    Preset = "basic"
	PresetExtended Preset = "extended"
	PresetFull     Preset = "full"
)

var presetColumns = map[Preset][]string{
	PresetMinimal: {"id", "name", "status"},
	PresetBasic:   {"id", "name", "status", "stage", "priority", "due_date", "updated_at"},
	PresetExtended: {
		"id", "name", "description", "status", "stage", "priority",
		"supplier_id", "budget", "due_date", "created_at", "updated_at",
	},
}

// Columns returns the columns loaded by the preset. Full and unknown presets return nil,
// meaning every column.
func (p Preset) Columns() []string {
	return presetColumns[p]
}

// Criteria restricts a select to the preset's columns.
func (p Preset) Criteria() repository.SelectCriteria {
	columns := p.Columns()
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if len(columns) == 0 {
			return q
		}
		return q.Column(columns...)
	}
}

func (p Preset) orDefault() Preset {
	if p == "" {
		return PresetBasic
	}
	return p
}

const (
	DefaultSort  = "updated_at"
	DefaultOrder = "desc"
	MaxLimit     = 500
)

var sortColumns = []any{"name", "status", "stage", "priority", "budget", "due_date", "created_at", "updated_at"}

// Filters narrows a project listing.
type Filters struct {
	Status     string `json:"status,omitempty" yaml:"status"`
	Stage      string `json:"stage,omitempty" yaml:"stage"`
	Priority   string `json:"priority,omitempty" yaml:"priority"`
	SupplierID string `json:"supplierId,omitempty" yaml:"supplier_id"`
	Search     string `json:"search,omitempty" yaml:"search"`
	Sort       string `json:"sort,omitempty" yaml:"sort"`
	Order      string `json:"order,omitempty" yaml:"order"`
	Offset     int    `json:"offset,omitempty" yaml:"offset"`
	Limit      int    `json:"limit,omitempty" yaml:"limit"`
}

// Validate rejects unknown sort columns and out of range paging.
func (f Filters) Validate() error {
	err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&f,
			validation.Field(&f.Sort, validation.In(sortColumns...)),
			validation.Field(&f.Order, validation.In("asc", "desc", "ASC", "DESC")),
			validation.Field(&f.Offset, validation.Min(0)),
			validation.Field(&f.Limit, validation.Min(0), validation.Max(MaxLimit)),
		)
	}, "invalid project filters")
	if err != nil {
		return err
	}
	return nil
}

// Map returns the filter fields that identify a cached query. Paging is carried by the
// query request itself; empty fields are dropped by the id serializer.
func (f Filters) Map() map[string]any {
	return map[string]any{
		"status":      f.Status,
		"stage":       f.Stage,
		"priority":    f.Priority,
		"supplier_id": f.SupplierID,
		"search":      strings.TrimSpace(f.Search),
		"sort":        f.Sort,
		"order":       strings.ToLower(f.Order),
	}
}

// Criteria translates the filters into bun select criteria for the remote listing.
func (f Filters) Criteria() []repository.SelectCriteria {
	var criteria []repository.SelectCriteria

	for _, eq := range [][2]string{
		{"status", f.Status},
		{"stage", f.Stage},
		{"priority", f.Priority},
		{"supplier_id", f.SupplierID},
	} {
		if eq[1] == "" {
			continue
		}
		criteria = append(criteria, whereEquals(eq[0], eq[1]))
	}

	if search := strings.TrimSpace(f.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("LOWER(?TableAlias.name) LIKE ?", pattern).
					WhereOr("LOWER(?TableAlias.description) LIKE ?", pattern)
			})
		})
	}

	column, order := f.Sort, strings.ToUpper(f.Order)
	if column == "" {
		column = DefaultSort
	}
	if order != "ASC" {
		order = strings.ToUpper(DefaultOrder)
	}
	criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("?TableAlias.? "+order, bun.Ident(column))
	})

	if f.Limit > 0 {
		limit := f.Limit
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Limit(limit)
		})
	}
	if f.Offset > 0 {
		offset := f.Offset
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Offset(offset)
		})
	}

	return criteria
}

func whereEquals(column, value string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.? = ?", bun.Ident(column), value)
	}
}
