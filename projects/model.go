package projects

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Table is the remote table projects are stored in. Mutation events carry it.
const Table = "projects"

const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusOnHold    = "on_hold"
	StatusCompleted = "completed"
	StatusArchived  = "archived"
)

const (
	StagePlanning   = "planning"
	StageRFQ        = "rfq"
	StageQuoting    = "quoting"
	StageProduction = "production"
	StageDelivered  = "delivered"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Project is a sourcing project.
type Project struct {
	bun.BaseModel `bun:"table:projects,alias:p" json:"-"`

	ID          uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	Name        string          `bun:"name,notnull" json:"name"`
	Description string          `bun:"description" json:"description,omitempty"`
	Status      string          `bun:"status,notnull" json:"status"`
	Stage       string          `bun:"stage" json:"stage,omitempty"`
	Priority    string          `bun:"priority" json:"priority,omitempty"`
	SupplierID  *uuid.UUID      `bun:"supplier_id,type:uuid" json:"supplierId,omitempty"`
	Budget      decimal.Decimal `bun:"budget,type:decimal(14,2)" json:"budget"`
	DueDate     *time.Time      `bun:"due_date" json:"dueDate,omitempty"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt   time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// Validate checks a project before it is sent to the remote store.
func (p *Project) Validate() error {
	err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(p,
			validation.Field(&p.Name, validation.Required, validation.Length(1, 200)),
			validation.Field(&p.Status, validation.Required,
				validation.In(StatusDraft, StatusActive, StatusOnHold, StatusCompleted, StatusArchived)),
			validation.Field(&p.Stage,
				validation.In(StagePlanning, StageRFQ, StageQuoting, StageProduction, StageDelivered)),
			validation.Field(&p.Priority,
				validation.In(PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent)),
			validation.Field(&p.Budget, validation.By(nonNegative)),
		)
	}, "invalid project")
	if err != nil {
		return err
	}
	return nil
}

func nonNegative(value any) error {
	if d, ok := value.(decimal.Decimal); ok && d.IsNegative() {
		return validation.NewError("validation_non_negative", "must not be negative")
	}
	return nil
}

// Fields flattens the project into the column-keyed map carried by mutation events.
// Rule conditions match against these keys.
func (p *Project) Fields() map[string]any {
	if p == nil {
		return nil
	}
	fields := map[string]any{
		"id":         p.ID.String(),
		"name":       p.Name,
		"status":     p.Status,
		"stage":      p.Stage,
		"priority":   p.Priority,
		"budget":     p.Budget,
		"created_at": p.CreatedAt,
		"updated_at": p.UpdatedAt,
	}
	if p.Description != "" {
		fields["description"] = p.Description
	}
	if p.SupplierID != nil {
		fields["supplier_id"] = p.SupplierID.String()
	}
	if p.DueDate != nil {
		fields["due_date"] = *p.DueDate
	}
	return fields
}

// Key returns the id the caches store the project under.
func Key(p *Project) string {
	if p == nil {
		return ""
	}
	return p.ID.String()
}
