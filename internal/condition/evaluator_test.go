package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marminbh/automation-svc/internal/models"
)

func snapshot() models.Snapshot {
	ctx := models.EventContext{
		EntityType: models.EntityDeal,
		EntityID:   "682c5990bf4a775c8de9598a",
		Current: map[string]any{
			"title":    "Acme renewal",
			"value":    1500.0,
			"currency": "USD",
			"tags":     []any{"vip", "renewal"},
			"notes":    "",
			"priority": "3",
			"stage":    map[string]any{"_id": "s-won", "name": "Won"},
		},
		ChangedFields: []string{"stage"},
	}
	return ctx.Snapshot()
}

func cond(field string, op models.Operator, value any) models.Condition {
	return models.Condition{Field: field, Operator: op, Value: value}
}

func TestCheckOperators(t *testing.T) {
	tests := []struct {
		name string
		c    models.Condition
		want bool
	}{
		{"equals string", cond("deal.title", models.OpEquals, "Acme renewal"), true},
		{"equals is case sensitive", cond("deal.title", models.OpEquals, "acme renewal"), false},
		{"equals number", cond("deal.value", models.OpEquals, 1500), true},
		{"equals numeric string value", cond("deal.value", models.OpEquals, "1500"), true},
		{"not equals", cond("deal.currency", models.OpNotEquals, "EUR"), true},
		{"equals missing path", cond("deal.owner.name", models.OpEquals, "x"), false},
		{"not equals missing path", cond("deal.owner.name", models.OpNotEquals, "x"), true},
		{"greater than", cond("deal.value", models.OpGreaterThan, 1000), true},
		{"greater than equal boundary", cond("deal.value", models.OpGreaterThanOrEqual, 1500.0), true},
		{"less than", cond("deal.value", models.OpLessThan, 1500), false},
		{"less than or equal", cond("deal.value", models.OpLessThanOrEqual, "1500"), true},
		{"numeric string field coerced", cond("deal.priority", models.OpGreaterThan, 2), true},
		{"non numeric field fails closed", cond("deal.title", models.OpGreaterThan, 1), false},
		{"non numeric value fails closed", cond("deal.value", models.OpLessThan, "lots"), false},
		{"missing field fails closed", cond("deal.probability", models.OpLessThan, 50), false},
		{"contains substring", cond("deal.title", models.OpContains, "renew"), true},
		{"contains list member", cond("deal.tags", models.OpContains, "vip"), true},
		{"not contains", cond("deal.title", models.OpNotContains, "Globex"), true},
		{"starts with", cond("deal.title", models.OpStartsWith, "Acme"), true},
		{"ends with", cond("deal.title", models.OpEndsWith, "Renewal"), false},
		{"is empty on empty string", cond("deal.notes", models.OpIsEmpty, nil), true},
		{"is empty on missing", cond("deal.lostReason", models.OpIsEmpty, nil), true},
		{"is not empty", cond("deal.tags", models.OpIsNotEmpty, nil), true},
		{"in list", cond("deal.currency", models.OpInList, []any{"USD", "EUR"}), true},
		{"in list miss", cond("deal.currency", models.OpInList, []any{"GBP"}), false},
		{"in list requires array", cond("deal.currency", models.OpInList, "USD"), false},
		{"not in list", cond("deal.currency", models.OpNotInList, []any{"GBP"}), true},
		{"not in list requires array", cond("deal.currency", models.OpNotInList, "GBP"), false},
		{"nested populated ref", cond("deal.stage._id", models.OpEquals, "s-won"), true},
		{"changed fields membership", cond("changedFields", models.OpContains, "stage"), true},
		{"unknown operator", cond("deal.title", "resembles", "Acme"), false},
	}

	snap := snapshot()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(tt.c, snap))
		})
	}
}

func TestEvaluateEmptyMatches(t *testing.T) {
	assert.True(t, Evaluate(nil, snapshot()))
	assert.True(t, Evaluate([]models.Condition{}, models.Snapshot{}))
}

// truth builds a condition that evaluates to b against the fixture snapshot
func truth(b bool, op models.LogicalOperator) models.Condition {
	c := cond("deal.currency", models.OpEquals, "USD")
	if !b {
		c.Value = "EUR"
	}
	c.LogicalOperator = op
	return c
}

func TestEvaluateSequentialFold(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c bool
		fold    bool
		grouped bool
	}{
		// [A(AND), B(OR), C] folds as (A AND B) OR C
		{"F F T", false, false, true, true, false},
		{"F T T", false, true, true, true, false},
		{"T F F", true, false, false, false, false},
		{"T T F", true, true, false, true, true},
		{"F T F", false, true, false, false, false},
	}

	snap := snapshot()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conditions := []models.Condition{
				truth(tt.a, models.LogicalAnd),
				truth(tt.b, models.LogicalOr),
				truth(tt.c, ""),
			}
			got := Evaluate(conditions, snap)
			assert.Equal(t, tt.fold, got)
			assert.Equal(t, (tt.a && tt.b) || tt.c, got)
			assert.Equal(t, tt.grouped, tt.a && (tt.b || tt.c))
		})
	}
}

func TestEvaluateOrThenAnd(t *testing.T) {
	// [A(OR), B(AND), C] folds as (A OR B) AND C; T,F,F must be false
	conditions := []models.Condition{
		truth(true, models.LogicalOr),
		truth(false, models.LogicalAnd),
		truth(false, ""),
	}
	assert.False(t, Evaluate(conditions, snapshot()))
}

func TestEvaluateDefaultsToAnd(t *testing.T) {
	conditions := []models.Condition{truth(true, ""), truth(false, "")}
	assert.False(t, Evaluate(conditions, snapshot()))
}

func TestEvaluateLastOperatorIgnored(t *testing.T) {
	conditions := []models.Condition{truth(false, models.LogicalAnd), truth(true, models.LogicalOr)}
	assert.False(t, Evaluate(conditions, snapshot()))
}
