package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/store"
	"github.com/marminbh/automation-svc/internal/testutil"
)

const onboarding = `
rules:
  - name: Welcome new contacts
    trigger: contact_created
    conditions:
      - field: email
        operator: is_not_empty
    actions:
      - id: greet
        type: send_message
        order: 1
        config:
          channel: email
          to: "{{contact.email}}"
          subject: Welcome
          body: Hi {{contact.firstName}}
      - id: wait
        type: delay
        order: 2
        config:
          minutes: 1440
      - id: follow-up
        type: create_task
        order: 3
        config:
          title: Call {{contact.firstName}}
          dueInDays: 2
  - ownerId: owner-b
    name: Tag big deals
    trigger: deal_created
    isActive: false
    conditions:
      - field: value
        operator: greater_than_or_equal
        value: 50000
    actions:
      - id: tag
        type: add_tag
        order: 1
        config:
          tag: enterprise
`

func TestParseRules(t *testing.T) {
	rules, err := parseRules([]byte(onboarding), "owner-a")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	welcome := rules[0]
	assert.Equal(t, "owner-a", welcome.OwnerID)
	assert.True(t, welcome.IsActive)
	assert.Equal(t, models.RuleTrigger("contact_created"), welcome.Trigger)
	require.Len(t, welcome.Actions, 3)
	assert.Equal(t, 1440, welcome.Actions[1].Delay())
	msg, ok := welcome.Actions[0].Config.(*models.SendMessageConfig)
	require.True(t, ok)
	assert.Equal(t, "{{contact.email}}", msg.To)

	deals := rules[1]
	assert.Equal(t, "owner-b", deals.OwnerID)
	assert.False(t, deals.IsActive)
	assert.EqualValues(t, 50000, deals.Conditions[0].Value)
}

func TestParseRulesAcceptsBareList(t *testing.T) {
	rules, err := parseRules([]byte(`
- ownerId: o
  name: tag
  trigger: deal_won
  actions:
    - {id: t, type: add_tag, order: 1, config: {tag: won}}
`), "")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestParseRulesRejects(t *testing.T) {
	cases := map[string]string{
		"not yaml":        "rules: [",
		"scalar document": "hello",
		"unknown trigger": "- {ownerId: o, name: n, trigger: nope, actions: [{id: a, type: add_tag, order: 1, config: {tag: x}}]}",
		"missing owner":   "- {name: n, trigger: deal_won, actions: [{id: a, type: add_tag, order: 1, config: {tag: x}}]}",
		"bad action":      "- {ownerId: o, name: n, trigger: deal_won, actions: [{id: a, type: teleport, order: 1}]}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseRules([]byte(doc), "")
			assert.Error(t, err)
		})
	}
}

func TestImportRules(t *testing.T) {
	st := store.New(testutil.NewDB(t))
	rules, err := parseRules([]byte(onboarding), "owner-a")
	require.NoError(t, err)

	ctx := context.Background()
	created, err := importRules(ctx, st, rules)
	require.NoError(t, err)
	require.Len(t, created, 2)

	stored, err := st.GetRule(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome new contacts", stored.Name)
	require.Len(t, stored.Actions, 3)
	assert.Equal(t, models.ActionCreateTask, stored.Actions[2].Type)
}
