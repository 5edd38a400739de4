package invalidation

// Tables covered by the default rule set.
const (
	TableProjects        = "projects"
	TableProjectContacts = "project_contacts"
	TableWorkflowStages  = "workflow_stages"
	TableProjectNotes    = "project_notes"
)

// DefaultRules returns the rule set every engine starts with.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "project-update-immediate",
			Trigger:  Trigger{Table: TableProjects, Operation: OperationUpdate},
			Targets:  []Target{{Type: TargetSpecificEntity}, {Type: TargetQueryCache, Pattern: "projects*"}},
			Strategy: StrategyImmediate,
			Priority: PriorityHigh,
		},
		{
			ID:       "project-create-immediate",
			Trigger:  Trigger{Table: TableProjects, Operation: OperationInsert},
			Targets:  []Target{{Type: TargetQueryCache, Pattern: "projects*"}, {Type: TargetMainCache}},
			Strategy: StrategyImmediate,
			Priority: PriorityHigh,
		},
		{
			ID:       "project-delete-immediate",
			Trigger:  Trigger{Table: TableProjects, Operation: OperationDelete},
			Targets:  []Target{{Type: TargetAll}},
			Strategy: StrategyImmediate,
			Priority: PriorityHigh,
		},
		{
			ID: "project-stage-change",
			Trigger: Trigger{
				Table:      TableProjects,
				Operation:  OperationUpdate,
				Conditions: []Condition{{Field: "stage", Operator: OperatorNeq}},
			},
			Targets:  []Target{{Type: TargetQueryCache, Pattern: "*stage*"}, {Type: TargetSpecificEntity}},
			Strategy: StrategyImmediate,
			Priority: PriorityHigh,
		},
		{
			ID: "project-status-change",
			Trigger: Trigger{
				Table:      TableProjects,
				Operation:  OperationUpdate,
				Conditions: []Condition{{Field: "status", Operator: OperatorNeq}},
			},
			Targets:  []Target{{Type: TargetQueryCache, Pattern: "*status*"}, {Type: TargetSpecificEntity}},
			Strategy: StrategyImmediate,
			Priority: PriorityHigh,
		},
		{
			ID:       "project-contacts-scheduled",
			Trigger:  Trigger{Table: TableProjectContacts, Operation: OperationUpdate},
			Targets:  []Target{{Type: TargetQueryCache, Pattern: "*contacts*"}, {Type: TargetQueryCache, Pattern: "projects*"}},
			Strategy: StrategyScheduled,
			Delay:    DefaultScheduledDelay,
			Priority: PriorityMedium,
		},
		{
			ID:       "workflow-stages-all",
			Trigger:  Trigger{Table: TableWorkflowStages, Operation: OperationAny},
			Targets:  []Target{{Type: TargetAll}},
			Strategy: StrategyImmediate,
			Priority: PriorityHigh,
		},
		{
			ID:       "project-notes-lazy",
			Trigger:  Trigger{Table: TableProjectNotes, Operation: OperationUpdate},
			Targets:  []Target{{Type: TargetQueryCache, Pattern: "*notes*"}},
			Strategy: StrategyLazy,
			Priority: PriorityLow,
		},
	}
}
