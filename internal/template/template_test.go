package template

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marminbh/automation-svc/internal/models"
)

func TestRender(t *testing.T) {
	ctx := models.EventContext{
		EntityType: models.EntityDeal,
		EntityID:   "682c5990bf4a775c8de9598a",
		EntityName: "Acme renewal",
		Current: map[string]any{
			"title": "Acme renewal",
			"value": 25000.0,
			"ratio": 0.25,
			"won":   true,
			"tags":  []any{"vip"},
			"owner": map[string]any{"_id": "u9", "name": "Grace"},
		},
		Previous: map[string]any{"value": 20000.0},
		UserID:   "u1",
		UserName: "Ada",
		Source:   models.SourceWeb,
	}
	data := DataFromEvent(models.EventDealWon, ctx)

	tests := []struct {
		in   string
		want string
	}{
		{"Deal {{entity.title}} won", "Deal Acme renewal won"},
		{"{{ deal.value }}", "25000"},
		{"{{deal.ratio}}", "0.25"},
		{"{{deal.won}}", "true"},
		{"{{deal.tags}}", `["vip"]`},
		{"{{deal.owner.name}}", "Grace"},
		{"was {{previous.value}}", "was 20000"},
		{"by {{user.name}} via {{event.source}}", "by Ada via web"},
		{"{{event.name}}", "deal.won"},
		{"{{entity.id}}", "682c5990bf4a775c8de9598a"},
		{"missing [{{deal.nothing.here}}]", "missing []"},
		{"no placeholders", "no placeholders"},
		{"{{unclosed", "{{unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.in, data))
		})
	}
}

func TestRenderWithoutPrevious(t *testing.T) {
	data := DataFromEvent(models.EventContactCreated, models.EventContext{
		EntityType: models.EntityContact,
		Current:    map[string]any{"email": "a@b.co"},
	})
	assert.Equal(t, "", Render("{{previous.email}}", data))
	assert.Equal(t, "a@b.co", Render("{{contact.email}}", data))
}

func TestRenderMap(t *testing.T) {
	data := DataFromEvent(models.EventDealCreated, models.EventContext{
		EntityType: models.EntityDeal,
		Current:    map[string]any{"title": "Globex"},
	})
	out := RenderMap(map[string]string{"subject": "New: {{deal.title}}"}, data)
	assert.Equal(t, "New: Globex", out["subject"])
	assert.Nil(t, RenderMap(nil, data))
}
