// Package template resolves {{path}} placeholders in action configs and
// message bodies against an event.
package template

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/marminbh/automation-svc/internal/models"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Data is the document placeholders are resolved against
type Data = models.Snapshot

// DataFromEvent exposes the entity under "entity" and under its type name,
// plus "previous", "user" and "event".
func DataFromEvent(event string, ctx models.EventContext) Data {
	entity := make(map[string]any, len(ctx.Current)+3)
	for k, v := range ctx.Current {
		entity[k] = v
	}
	if _, ok := entity["id"]; !ok {
		entity["id"] = ctx.EntityID
	}
	if _, ok := entity["name"]; !ok && ctx.EntityName != "" {
		entity["name"] = ctx.EntityName
	}
	entity["type"] = string(ctx.EntityType)

	data := Data{
		"entity":   entity,
		"previous": ctx.Previous,
		"user":     map[string]any{"id": ctx.UserID, "name": ctx.UserName},
		"event":    map[string]any{"name": event, "source": string(ctx.Source)},
	}
	if ctx.EntityType != "" {
		if _, reserved := data[string(ctx.EntityType)]; !reserved {
			data[string(ctx.EntityType)] = entity
		}
	}
	return data
}

// Render replaces every placeholder. Unresolved paths become "".
func Render(s string, data Data) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholder.FindStringSubmatch(match)[1]
		v, ok := data.Lookup(path)
		if !ok {
			return ""
		}
		return Format(v)
	})
}

// RenderMap renders every value of m into a new map
func RenderMap(m map[string]string, data Data) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Render(v, data)
	}
	return out
}

// Format prints a resolved value the way it reads in a message
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
