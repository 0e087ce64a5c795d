package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marminbh/automation-svc/internal/utils"
)

var (
	ErrInvalidRule         = errors.New("invalid rule")
	ErrInvalidSubscription = errors.New("invalid webhook subscription")
	ErrInvalidEvent        = errors.New("invalid event")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ruletrigger", func(fl validator.FieldLevel) bool {
		return IsValidTrigger(RuleTrigger(fl.Field().String()))
	})
	_ = v.RegisterValidation("webhookevent", func(fl validator.FieldLevel) bool {
		return IsWebhookEvent(fl.Field().String())
	})
	_ = v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
		return utils.ValidEntityID(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// describe flattens validator output into "field: rule" pairs
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// ValidateRule rejects malformed rule definitions before they are stored
func ValidateRule(r *Rule) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRule, describe(err))
	}

	for i, c := range r.Conditions {
		if c.Operator == OpInList || c.Operator == OpNotInList {
			if _, ok := c.Value.([]any); !ok {
				return fmt.Errorf("%w: conditions[%d]: %s requires a list value", ErrInvalidRule, i, c.Operator)
			}
		}
	}

	seen := make(map[string]struct{}, len(r.Actions))
	for i, a := range r.Actions {
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("%w: actions[%d]: duplicate action id %q", ErrInvalidRule, i, a.ID)
		}
		seen[a.ID] = struct{}{}

		if err := ValidateActionConfig(a); err != nil {
			return fmt.Errorf("%w: actions[%d]: %s", ErrInvalidRule, i, err.Error())
		}
	}
	return nil
}

// ValidateActionConfig checks that the config variant belongs to the action
// type and satisfies its constraints
func ValidateActionConfig(a Action) error {
	want, err := NewActionConfig(a.Type)
	if err != nil {
		return err
	}
	if a.Config == nil || reflect.ValueOf(a.Config).IsNil() {
		return fmt.Errorf("%s action has no config", a.Type)
	}
	if reflect.TypeOf(a.Config) != reflect.TypeOf(want) {
		return fmt.Errorf("%s action carries a %T config", a.Type, a.Config)
	}
	if err := validate.Struct(a.Config); err != nil {
		return fmt.Errorf("config: %s", describe(err))
	}
	return nil
}

// ValidateSubscription rejects malformed subscriptions. Defaults are applied
// first so omitted retry and timeout settings pass.
func ValidateSubscription(s *WebhookSubscription) error {
	s.ApplyDefaults()
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSubscription, describe(err))
	}
	f := s.Filters
	if f.MinValue != nil && f.MaxValue != nil && *f.MaxValue < *f.MinValue {
		return fmt.Errorf("%w: filters: maxValue below minValue", ErrInvalidSubscription)
	}
	for name := range s.Headers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: headers: empty header name", ErrInvalidSubscription)
		}
	}
	return nil
}

// ValidateEvent checks an ingested event before it reaches the dispatcher
func ValidateEvent(e *DomainEvent) error {
	tag, err := ParseEventTag(e.Event)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, err.Error())
	}
	e.Event = tag
	if e.Context.EntityType == "" {
		e.Context.EntityType = EntityTypeForEvent(tag)
	}
	if err := validate.Struct(&e.Context); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, describe(err))
	}
	return nil
}
