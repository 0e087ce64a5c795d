package actions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/store"
	"github.com/marminbh/automation-svc/internal/testutil"
	"github.com/marminbh/automation-svc/internal/worker"
)

type fakePublisher struct {
	mu       sync.Mutex
	commands []models.MutationCommand
	failOn   map[string]bool
	panicOn  map[string]bool
}

func (p *fakePublisher) Publish(ctx context.Context, cmd models.MutationCommand) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tag, _ := cmd.Params["tag"].(string); p.panicOn[tag] {
		panic("publisher exploded")
	}
	if tag, _ := cmd.Params["tag"].(string); p.failOn[tag] {
		return errors.New("broker unavailable")
	}
	p.commands = append(p.commands, cmd)
	return nil
}

func (p *fakePublisher) tags() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var tags []string
	for _, c := range p.commands {
		if tag, ok := c.Params["tag"].(string); ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

type fakeMessenger struct {
	emails []string
	sms    []string
}

func (m *fakeMessenger) SendEmail(ctx context.Context, to, subject, body string) error {
	m.emails = append(m.emails, to+"|"+subject+"|"+body)
	return nil
}

func (m *fakeMessenger) SendSMS(ctx context.Context, to, body string) error {
	m.sms = append(m.sms, to+"|"+body)
	return nil
}

type fakeCaller struct {
	requests []worker.CallRequest
}

func (c *fakeCaller) Call(ctx context.Context, req worker.CallRequest) (*worker.DeliveryResult, error) {
	c.requests = append(c.requests, req)
	code := 200
	return &worker.DeliveryResult{HTTPStatus: &code}, nil
}

var fixedNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type harness struct {
	store     *store.Store
	publisher *fakePublisher
	messenger *fakeMessenger
	caller    *fakeCaller
	executor  *Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     store.New(testutil.NewDB(t)),
		publisher: &fakePublisher{failOn: map[string]bool{}, panicOn: map[string]bool{}},
		messenger: &fakeMessenger{},
		caller:    &fakeCaller{},
	}
	h.executor = NewExecutor(h.store, h.messenger, h.publisher, h.caller, zap.NewNop()).
		WithClock(func() time.Time { return fixedNow })
	return h
}

func tagAction(id string, order int, tag string) models.Action {
	return models.Action{ID: id, Type: models.ActionAddTag, Order: order, Config: &models.TagConfig{Tag: tag}}
}

func (h *harness) saveRule(t *testing.T, actions ...models.Action) *models.Rule {
	t.Helper()
	rule := &models.Rule{
		OwnerID:  "owner-1",
		Name:     "test rule",
		Trigger:  models.TriggerDealWon,
		Actions:  actions,
		IsActive: true,
	}
	require.NoError(t, h.store.CreateRule(context.Background(), rule))
	return rule
}

func dealEvent() models.EventContext {
	return models.EventContext{
		EntityType: models.EntityDeal,
		EntityID:   "682c5990bf4a775c8de9598a",
		Current:    map[string]any{"title": "Acme", "value": 5000.0, "contactEmail": "buyer@acme.test"},
		UserID:     "u1",
		UserName:   "Ada",
	}
}

func TestRunActionFailureDoesNotStopSiblings(t *testing.T) {
	h := newHarness(t)
	h.publisher.failOn["two"] = true
	rule := h.saveRule(t, tagAction("a1", 1, "one"), tagAction("a2", 2, "two"), tagAction("a3", 3, "three"))

	result := h.executor.Run(context.Background(), rule, models.EventDealWon, dealEvent())

	require.Len(t, result.ActionsExecuted, 3)
	assert.True(t, result.ActionsExecuted[0].Success)
	assert.False(t, result.ActionsExecuted[1].Success)
	assert.Contains(t, result.ActionsExecuted[1].Error, "broker unavailable")
	assert.True(t, result.ActionsExecuted[2].Success)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"one", "three"}, h.publisher.tags())

	got, err := h.store.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ExecutionCount)
	require.NotNil(t, got.LastExecutedAt)
	assert.True(t, got.LastExecutedAt.Equal(fixedNow))

	execs, err := h.store.ListExecutions(context.Background(), rule.ID, store.Page{})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.False(t, execs[0].Success)
	assert.Len(t, execs[0].ActionsExecuted, 3)
}

func TestRunRecoversPanickingAction(t *testing.T) {
	h := newHarness(t)
	h.publisher.panicOn["boom"] = true
	rule := h.saveRule(t, tagAction("a1", 1, "boom"), tagAction("a2", 2, "after"))

	result := h.executor.Run(context.Background(), rule, models.EventDealWon, dealEvent())

	require.Len(t, result.ActionsExecuted, 2)
	assert.False(t, result.ActionsExecuted[0].Success)
	assert.Contains(t, result.ActionsExecuted[0].Error, "publisher exploded")
	assert.True(t, result.ActionsExecuted[1].Success)
}

func TestRunFollowsOrderThenPosition(t *testing.T) {
	h := newHarness(t)
	rule := h.saveRule(t,
		tagAction("a1", 3, "third"),
		tagAction("a2", 1, "first"),
		tagAction("a3", 2, "second-a"),
		tagAction("a4", 2, "second-b"),
	)

	result := h.executor.Run(context.Background(), rule, models.EventDealWon, dealEvent())

	assert.True(t, result.Success)
	assert.Equal(t, []string{"first", "second-a", "second-b", "third"}, h.publisher.tags())
}

func TestRunRendersTemplates(t *testing.T) {
	h := newHarness(t)
	rule := h.saveRule(t,
		models.Action{ID: "m1", Type: models.ActionSendMessage, Order: 1, Config: &models.SendMessageConfig{
			Channel: "email", To: "{{deal.contactEmail}}", Subject: "Won {{deal.title}}", Body: "{{user.name}} closed {{deal.value}}",
		}},
		models.Action{ID: "u1", Type: models.ActionUpdateField, Order: 2, Config: &models.UpdateFieldConfig{
			Field: "notes", Value: "closed by {{user.name}}{{deal.missing}}",
		}},
		models.Action{ID: "w1", Type: models.ActionCallWebhook, Order: 3, Config: &models.CallWebhookConfig{
			URL: "https://example.com/deals/{{entity.id}}", Headers: map[string]string{"X-Deal": "{{deal.title}}"},
		}},
	)

	result := h.executor.Run(context.Background(), rule, models.EventDealWon, dealEvent())
	require.True(t, result.Success, "%+v", result.ActionsExecuted)

	assert.Equal(t, []string{"buyer@acme.test|Won Acme|Ada closed 5000"}, h.messenger.emails)

	require.Len(t, h.publisher.commands, 1)
	cmd := h.publisher.commands[0]
	assert.Equal(t, models.ActionUpdateField, cmd.Action)
	assert.Equal(t, "closed by Ada", cmd.Params["value"])
	assert.Equal(t, models.SourceWorkflow, cmd.Source)
	assert.Equal(t, "682c5990bf4a775c8de9598a", cmd.EntityID)

	require.Len(t, h.caller.requests, 1)
	assert.Equal(t, "https://example.com/deals/682c5990bf4a775c8de9598a", h.caller.requests[0].URL)
	assert.Equal(t, "Acme", h.caller.requests[0].Headers["X-Deal"])
}

func TestDelayedActionBecomesContinuation(t *testing.T) {
	h := newHarness(t)
	delayed := tagAction("a2", 2, "later")
	delayed.DelayMinutes = 10
	rule := h.saveRule(t, tagAction("a1", 1, "now"), delayed, tagAction("a3", 3, "last"))

	result := h.executor.Run(context.Background(), rule, models.EventDealWon, dealEvent())

	require.Len(t, result.ActionsExecuted, 2)
	assert.True(t, result.Success)
	assert.Equal(t, true, result.ActionsExecuted[1].Details["scheduled"])
	assert.Equal(t, []string{"now"}, h.publisher.tags())

	due, err := h.store.DueScheduledActions(context.Background(), fixedNow.Add(10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	sa := due[0]
	assert.True(t, sa.RunAt.Equal(fixedNow.Add(10*time.Minute)))
	assert.True(t, sa.SkipFirstDelay)
	require.Len(t, sa.Actions, 2)
	assert.Equal(t, "a2", sa.Actions[0].ID)

	early, err := h.store.DueScheduledActions(context.Background(), fixedNow.Add(9*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, early)

	resumed := h.executor.Resume(context.Background(), rule, &sa)
	assert.True(t, resumed.Success)
	assert.Len(t, resumed.ActionsExecuted, 2)
	assert.Equal(t, []string{"now", "later", "last"}, h.publisher.tags())

	got, err := h.store.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ExecutionCount, "resuming is not a new dispatch")
}

func TestDelayActionResumesAfterItself(t *testing.T) {
	h := newHarness(t)
	rule := h.saveRule(t,
		tagAction("a1", 1, "now"),
		models.Action{ID: "d1", Type: models.ActionDelay, Order: 2, Config: &models.DelayConfig{Minutes: 30}},
		tagAction("a3", 3, "after"),
	)

	result := h.executor.Run(context.Background(), rule, models.EventDealWon, dealEvent())
	require.Len(t, result.ActionsExecuted, 2)
	assert.Equal(t, models.ActionDelay, result.ActionsExecuted[1].Type)

	due, err := h.store.DueScheduledActions(context.Background(), fixedNow.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.False(t, due[0].SkipFirstDelay)
	require.Len(t, due[0].Actions, 1)
	assert.Equal(t, "a3", due[0].Actions[0].ID)
}

func TestTrailingDelaySchedulesNothing(t *testing.T) {
	h := newHarness(t)
	rule := h.saveRule(t,
		tagAction("a1", 1, "now"),
		models.Action{ID: "d1", Type: models.ActionDelay, Order: 2, Config: &models.DelayConfig{Minutes: 5}},
	)

	result := h.executor.Run(context.Background(), rule, models.EventDealWon, dealEvent())
	assert.True(t, result.Success)

	due, err := h.store.DueScheduledActions(context.Background(), fixedNow.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMissingCollaboratorFailsOnlyThatAction(t *testing.T) {
	h := newHarness(t)
	h.executor.messenger = nil
	rule := h.saveRule(t,
		models.Action{ID: "m1", Type: models.ActionSendMessage, Order: 1, Config: &models.SendMessageConfig{Channel: "sms", To: "+15550100", Body: "hi"}},
		tagAction("a2", 2, "ok"),
	)

	result := h.executor.Run(context.Background(), rule, models.EventDealWon, dealEvent())
	require.Len(t, result.ActionsExecuted, 2)
	assert.False(t, result.ActionsExecuted[0].Success)
	assert.Contains(t, result.ActionsExecuted[0].Error, "not configured")
	assert.True(t, result.ActionsExecuted[1].Success)
}
