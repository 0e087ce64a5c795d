package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionUnmarshalDecodesVariant(t *testing.T) {
	raw := `[
		{"id":"a1","type":"send_message","order":1,"config":{"channel":"email","to":"{{deal.contactEmail}}","subject":"Hi","body":"Deal {{deal.title}}"}},
		{"id":"a2","type":"add_tag","order":2,"config":{"tag":"hot"}},
		{"id":"a3","type":"delay","order":3,"config":{"minutes":15}},
		{"id":"a4","type":"call_webhook","order":4,"delayMinutes":5,"config":{"url":"https://example.com/hook","headers":{"X-Team":"sales"}}}
	]`

	var actions []Action
	require.NoError(t, json.Unmarshal([]byte(raw), &actions))
	require.Len(t, actions, 4)

	msg, ok := actions[0].Config.(*SendMessageConfig)
	require.True(t, ok)
	assert.Equal(t, "email", msg.Channel)
	assert.Equal(t, "{{deal.contactEmail}}", msg.To)

	tag, ok := actions[1].Config.(*TagConfig)
	require.True(t, ok)
	assert.Equal(t, "hot", tag.Tag)

	assert.Equal(t, 15, actions[2].Delay())
	assert.Equal(t, 5, actions[3].Delay())

	hook, ok := actions[3].Config.(*CallWebhookConfig)
	require.True(t, ok)
	assert.Equal(t, "sales", hook.Headers["X-Team"])
}

func TestActionUnmarshalRejectsUnknownType(t *testing.T) {
	var a Action
	err := json.Unmarshal([]byte(`{"id":"a1","type":"launch_rocket","config":{}}`), &a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch_rocket")
}

func TestActionMarshalKeepsConfigShape(t *testing.T) {
	a := Action{ID: "a1", Type: ActionAssignOwner, Order: 1, Config: &AssignOwnerConfig{OwnerID: "u-7"}}

	data, err := json.Marshal(a)
	require.NoError(t, err)

	var back Action
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, &AssignOwnerConfig{OwnerID: "u-7"}, back.Config)
}

func TestSortActionsStableOnTies(t *testing.T) {
	actions := []Action{
		{ID: "c", Order: 2},
		{ID: "a", Order: 1},
		{ID: "b", Order: 1},
		{ID: "d", Order: 0},
	}

	sorted := SortActions(actions)

	ids := make([]string, len(sorted))
	for i, a := range sorted {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
	assert.Equal(t, "c", actions[0].ID, "input slice must not be reordered")
}
