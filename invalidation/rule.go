package invalidation

import (
	"fmt"
	"reflect"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultScheduledDelay is used by scheduled rules that do not set a delay.
const DefaultScheduledDelay = 2000 * time.Millisecond

// Operation is the kind of mutation a rule reacts to.
type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
	OperationAny    Operation = "*"
)

// Operator compares a condition against the mutated record.
type Operator string

const (
	// OperatorEq holds when the new value equals the condition value.
	OperatorEq Operator = "eq"
	// OperatorNeq holds when the field changed between the old and the new record. The
	// condition value is ignored.
	OperatorNeq Operator = "neq"
	// OperatorIn holds when the new value is one of the condition values.
	OperatorIn Operator = "in"
	// OperatorContains holds when the new value is a list holding the condition value.
	OperatorContains Operator = "contains"
)

// TargetType names a cache region.
type TargetType string

const (
	TargetMainCache      TargetType = "main_cache"
	TargetQueryCache     TargetType = "query_cache"
	TargetSpecificEntity TargetType = "specific_entity"
	TargetAll            TargetType = "all"
)

// Strategy decides when matched targets are invalidated.
type Strategy string

const (
	StrategyImmediate   Strategy = "immediate"
	StrategyLazy        Strategy = "lazy"
	StrategyScheduled   Strategy = "scheduled"
	StrategyConditional Strategy = "conditional"
)

// Priority orders matched rules, high first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Condition restricts a trigger to mutations with particular field values.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Validate checks the condition.
func (c Condition) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Field, validation.Required),
		validation.Field(&c.Operator, validation.Required,
			validation.In(OperatorEq, OperatorNeq, OperatorIn, OperatorContains)),
		validation.Field(&c.Value, validation.When(c.Operator == OperatorIn, validation.By(isList))),
	)
}

func isList(value any) error {
	v := reflect.ValueOf(value)
	if value == nil || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return fmt.Errorf("must be a list")
	}
	return nil
}

// Trigger selects the mutations a rule reacts to.
type Trigger struct {
	Table      string      `json:"table" yaml:"table"`
	Operation  Operation   `json:"operation" yaml:"operation"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Validate checks the trigger.
func (t Trigger) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Table, validation.Required),
		validation.Field(&t.Operation, validation.Required,
			validation.In(OperationInsert, OperationUpdate, OperationDelete, OperationAny)),
		validation.Field(&t.Conditions),
	)
}

// Target is a cache region to invalidate. Pattern scopes query cache targets; EntityID
// pins a specific entity target, which otherwise uses the record id of the event.
type Target struct {
	Type     TargetType `json:"type" yaml:"type"`
	Pattern  string     `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	EntityID string     `json:"entityId,omitempty" yaml:"entity_id,omitempty"`
}

// Validate checks the target.
func (t Target) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Type, validation.Required,
			validation.In(TargetMainCache, TargetQueryCache, TargetSpecificEntity, TargetAll)),
	)
}

// resolve fills the entity id of a specific entity target from the event.
func (t Target) resolve(recordID string) Target {
	if t.Type == TargetSpecificEntity && t.EntityID == "" {
		t.EntityID = recordID
	}
	return t
}

// String describes the target as "type" or "type:subject".
func (t Target) String() string {
	switch t.Type {
	case TargetQueryCache:
		if t.Pattern != "" {
			return string(t.Type) + ":" + t.Pattern
		}
	case TargetSpecificEntity:
		if t.EntityID != "" {
			return string(t.Type) + ":" + t.EntityID
		}
	}
	return string(t.Type)
}

// subject is the stale marker subject of the target.
func (t Target) subject() string {
	switch t.Type {
	case TargetQueryCache:
		if t.Pattern != "" {
			return t.Pattern
		}
	case TargetSpecificEntity:
		if t.EntityID != "" {
			return t.EntityID
		}
	}
	return string(TargetAll)
}

// Rule maps a trigger to the targets it invalidates.
type Rule struct {
	ID       string        `json:"id" yaml:"id"`
	Trigger  Trigger       `json:"trigger" yaml:"trigger"`
	Targets  []Target      `json:"targets" yaml:"targets"`
	Strategy Strategy      `json:"strategy" yaml:"strategy"`
	Delay    time.Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
	Priority Priority      `json:"priority" yaml:"priority"`
}

// Normalize fills defaults: immediate strategy, medium priority and, for scheduled
// rules, the default delay.
func (r Rule) Normalize() Rule {
	if r.Strategy == "" {
		r.Strategy = StrategyImmediate
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if r.Strategy == StrategyScheduled && r.Delay <= 0 {
		r.Delay = DefaultScheduledDelay
	}
	return r
}

// Validate checks the rule.
func (r Rule) Validate() error {
	err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.ID, validation.Required),
			validation.Field(&r.Trigger),
			validation.Field(&r.Targets, validation.Required),
			validation.Field(&r.Strategy, validation.Required,
				validation.In(StrategyImmediate, StrategyLazy, StrategyScheduled, StrategyConditional)),
			validation.Field(&r.Priority, validation.Required,
				validation.In(PriorityHigh, PriorityMedium, PriorityLow)),
			validation.Field(&r.Delay, validation.Min(time.Duration(0))),
		)
	}, "invalid invalidation rule")
	if err != nil {
		return err
	}
	return nil
}

// matches reports whether the rule reacts to event.
func (r Rule) matches(event MutationEvent) bool {
	if r.Trigger.Table != event.Table {
		return false
	}
	if r.Trigger.Operation != OperationAny && r.Trigger.Operation != event.Operation {
		return false
	}
	return conditionsHold(r.Trigger.Conditions, event.OldData, event.NewData)
}
