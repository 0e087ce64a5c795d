package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/config"
	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/store"
	"github.com/marminbh/automation-svc/internal/testutil"
	"github.com/marminbh/automation-svc/internal/worker"
)

type recordingRunner struct {
	mu      sync.Mutex
	runs    []string
	panicOn string
}

func (r *recordingRunner) Run(ctx context.Context, rule *models.Rule, event string, ectx models.EventContext) models.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.Name == r.panicOn {
		panic("rule blew up")
	}
	r.runs = append(r.runs, rule.Name+"@"+event)
	return models.ExecutionResult{Success: true}
}

func (r *recordingRunner) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.runs...)
	sort.Strings(out)
	return out
}

var testConfig = config.DispatcherConfig{
	IngestWorkers:   2,
	FanoutWorkers:   2,
	DeliveryWorkers: 4,
	QueueSize:       100,
	BatchSize:       2,
	BatchPause:      time.Millisecond,
}

type fixture struct {
	store      *store.Store
	runner     *recordingRunner
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, cfg config.DispatcherConfig) *fixture {
	t.Helper()
	st := store.New(testutil.NewDB(t))
	runner := &recordingRunner{}
	delivery := worker.NewService(st, config.DeliveryConfig{Product: "Pulse"}, zap.NewNop())
	return &fixture{
		store:      st,
		runner:     runner,
		dispatcher: NewDispatcher(cfg, st, runner, delivery, zap.NewNop()),
	}
}

func (f *fixture) close(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.dispatcher.Close(ctx))
}

func (f *fixture) rule(t *testing.T, name string, trigger models.RuleTrigger, conditions ...models.Condition) {
	t.Helper()
	require.NoError(t, f.store.CreateRule(context.Background(), &models.Rule{
		OwnerID:    "owner-1",
		Name:       name,
		Trigger:    trigger,
		Conditions: conditions,
		Actions:    []models.Action{{ID: "a1", Type: models.ActionAddTag, Order: 1, Config: &models.TagConfig{Tag: "x"}}},
		IsActive:   true,
	}))
}

func (f *fixture) subscription(t *testing.T, name, url string, filters models.WebhookFilters, events ...string) *models.WebhookSubscription {
	t.Helper()
	sub := &models.WebhookSubscription{
		OwnerID:    "owner-1",
		Name:       name,
		URL:        url,
		Secret:     "whsec_0123456789abcdef",
		Events:     events,
		Filters:    filters,
		IsActive:   true,
		MaxRetries: 3,
		TimeoutMs:  2000,
	}
	require.NoError(t, f.store.CreateSubscription(context.Background(), sub))
	return sub
}

func (f *fixture) logs(t *testing.T, sub *models.WebhookSubscription) []models.DeliveryLog {
	t.Helper()
	logs, err := f.store.ListDeliveryLogs(context.Background(), sub.ID, "", store.Page{Limit: 100})
	require.NoError(t, err)
	return logs
}

func deal(current map[string]any, changed ...string) models.EventContext {
	if current["value"] == nil {
		current["value"] = 5000.0
	}
	return models.EventContext{
		EntityType:    models.EntityDeal,
		EntityID:      "682c5990bf4a775c8de9598a",
		Current:       current,
		ChangedFields: changed,
		Source:        models.SourceWeb,
	}
}

func TestDispatchRunsMatchingRules(t *testing.T) {
	f := newFixture(t, testConfig)
	f.dispatcher.Start()

	f.rule(t, "updated", models.TriggerDealUpdated)
	f.rule(t, "big-updates", models.TriggerDealUpdated, models.Condition{Field: "value", Operator: models.OpGreaterThan, Value: 10000.0})
	f.rule(t, "value-changed", models.TriggerDealValueChanged)
	f.rule(t, "created", models.TriggerDealCreated)

	f.dispatcher.Dispatch(context.Background(), models.EventDealUpdated, deal(map[string]any{"title": "Acme"}, "value"))

	assert.Equal(t, []string{"updated@deal.updated", "value-changed@deal.value_changed"}, f.runner.recorded())
	f.close(t)
}

func TestDispatchIsolatesPanickingRule(t *testing.T) {
	f := newFixture(t, testConfig)
	f.dispatcher.Start()
	f.runner.panicOn = "explodes"

	f.rule(t, "explodes", models.TriggerDealCreated)
	f.rule(t, "survives", models.TriggerDealCreated)

	assert.NotPanics(t, func() {
		f.dispatcher.Dispatch(context.Background(), models.EventDealCreated, deal(map[string]any{}))
	})
	assert.Equal(t, []string{"survives@deal.created"}, f.runner.recorded())
	f.close(t)
}

func TestStageChangeCascades(t *testing.T) {
	f := newFixture(t, testConfig)
	f.dispatcher.Start()
	ctx := context.Background()

	require.NoError(t, f.store.SaveStage(ctx, &models.PipelineStage{ID: "stage-won", PipelineID: "p1", IsWon: true, IsClosed: true}))
	require.NoError(t, f.store.SaveStage(ctx, &models.PipelineStage{ID: "stage-lost", PipelineID: "p1", IsClosed: true}))
	require.NoError(t, f.store.SaveStage(ctx, &models.PipelineStage{ID: "stage-open", PipelineID: "p1"}))

	f.rule(t, "won", models.TriggerDealWon)
	f.rule(t, "lost", models.TriggerDealLost)

	f.dispatcher.Dispatch(ctx, models.EventDealStageChanged, deal(map[string]any{"stageId": "stage-open"}, "stageId"))
	assert.Empty(t, f.runner.recorded())

	f.dispatcher.Dispatch(ctx, models.EventDealStageChanged, deal(map[string]any{"stage": map[string]any{"_id": "stage-lost"}}, "stage"))
	assert.Equal(t, []string{"lost@deal.lost"}, f.runner.recorded())

	f.dispatcher.Dispatch(ctx, models.EventDealStageChanged, deal(map[string]any{"stage": map[string]any{"_id": "unknown", "isWon": true}}, "stage"))
	assert.Equal(t, []string{"lost@deal.lost", "won@deal.won"}, f.runner.recorded())

	f.dispatcher.Dispatch(ctx, models.EventDealStageChanged, deal(map[string]any{"stageId": "missing"}, "stageId"))
	assert.Len(t, f.runner.recorded(), 2)
	f.close(t)
}

func TestWonDealFansOutIndependently(t *testing.T) {
	var mu sync.Mutex
	received := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received[r.URL.Path+" "+r.Header.Get(worker.HeaderEvent)]++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	f := newFixture(t, testConfig)
	f.dispatcher.Start()
	ctx := context.Background()
	require.NoError(t, f.store.SaveStage(ctx, &models.PipelineStage{ID: "stage-won", PipelineID: "p1", IsWon: true, IsClosed: true}))
	f.rule(t, "celebrate", models.TriggerDealWon)

	minValue := 1000.0
	maxValue := 100.0
	stageSub := f.subscription(t, "stage", server.URL+"/stage", models.WebhookFilters{}, models.EventDealStageChanged)
	wonSub := f.subscription(t, "won", server.URL+"/won", models.WebhookFilters{}, models.EventDealWon)
	deadSub := f.subscription(t, "dead", deadURL+"/won", models.WebhookFilters{}, models.EventDealWon)
	bigSub := f.subscription(t, "big", server.URL+"/big", models.WebhookFilters{MinValue: &minValue, PipelineID: "p1"}, models.EventDealWon, models.EventDealLost)
	smallSub := f.subscription(t, "small", server.URL+"/small", models.WebhookFilters{MaxValue: &maxValue}, models.EventDealWon)

	f.dispatcher.Dispatch(ctx, models.EventDealStageChanged, deal(map[string]any{"stageId": "stage-won", "pipelineId": "p1"}, "stageId"))
	assert.Equal(t, []string{"celebrate@deal.won"}, f.runner.recorded())
	f.close(t)

	for _, sub := range []*models.WebhookSubscription{stageSub, wonSub, bigSub} {
		logs := f.logs(t, sub)
		require.Len(t, logs, 1, sub.Name)
		assert.Equal(t, models.DeliverySuccess, logs[0].Status, sub.Name)
	}
	assert.Equal(t, models.EventDealStageChanged, f.logs(t, stageSub)[0].Event)
	assert.Equal(t, models.EventDealWon, f.logs(t, wonSub)[0].Event)

	deadLogs := f.logs(t, deadSub)
	require.Len(t, deadLogs, 1)
	assert.Equal(t, models.DeliveryRetrying, deadLogs[0].Status)
	assert.NotNil(t, deadLogs[0].Error)
	assert.NotNil(t, deadLogs[0].NextRetryAt)

	assert.Empty(t, f.logs(t, smallSub))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{
		"/stage " + models.EventDealStageChanged: 1,
		"/won " + models.EventDealWon:            1,
		"/big " + models.EventDealWon:            1,
	}, received)
}

func TestSuspendedSubscriptionReceivesNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newFixture(t, testConfig)
	f.dispatcher.Start()
	ctx := context.Background()
	sub := f.subscription(t, "flaky", server.URL, models.WebhookFilters{}, models.EventDealCreated)

	for i := 1; i <= models.SuspendThreshold; i++ {
		f.dispatcher.Dispatch(ctx, models.EventDealCreated, deal(map[string]any{}))
		want := i
		require.Eventually(t, func() bool {
			got, err := f.store.GetSubscription(ctx, sub.ID)
			return err == nil && got.ConsecutiveFailures == want
		}, 5*time.Second, 10*time.Millisecond)
	}

	f.dispatcher.Dispatch(ctx, models.EventDealCreated, deal(map[string]any{}))
	f.close(t)

	assert.Len(t, f.logs(t, sub), models.SuspendThreshold)
	got, err := f.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSuspended())
	assert.Equal(t, int64(0), got.TotalFailed)
}

func TestFullQueueDefersDeliveries(t *testing.T) {
	cfg := testConfig
	cfg.QueueSize = 0
	f := newFixture(t, cfg)
	// pools never started: an unbuffered queue with no workers rejects every task
	ctx := context.Background()
	sub := f.subscription(t, "later", "https://example.invalid/hook", models.WebhookFilters{}, models.EventDealCreated)

	f.dispatcher.Dispatch(ctx, models.EventDealCreated, deal(map[string]any{}))
	f.close(t)

	logs := f.logs(t, sub)
	require.Len(t, logs, 1)
	assert.Equal(t, models.DeliveryRetrying, logs[0].Status)
	assert.Equal(t, 0, logs[0].Attempts)
	require.NotNil(t, logs[0].NextRetryAt)
	assert.WithinDuration(t, time.Now(), *logs[0].NextRetryAt, time.Minute)
}

func TestCloseWaitsForAcceptedEvents(t *testing.T) {
	f := newFixture(t, testConfig)
	f.rule(t, "created", models.TriggerDealCreated)
	f.dispatcher.Start()

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 5; i++ {
		require.True(t, f.dispatcher.DispatchAsync(ctx, models.EventDealCreated, deal(map[string]any{"title": "Acme"})))
	}
	// the request that accepted the events is long gone by the time they run
	cancel()

	f.close(t)
	assert.Len(t, f.runner.recorded(), 5)
	assert.False(t, f.dispatcher.DispatchAsync(context.Background(), models.EventDealCreated, deal(map[string]any{})))
}

func TestDispatchAsyncReportsFullQueue(t *testing.T) {
	cfg := testConfig
	cfg.QueueSize = 0
	f := newFixture(t, cfg)
	f.rule(t, "created", models.TriggerDealCreated)

	assert.False(t, f.dispatcher.DispatchAsync(context.Background(), models.EventDealCreated, deal(map[string]any{})))
	f.close(t)
	assert.Empty(t, f.runner.recorded())
}
