package jira

import (
	"fmt"
	"strings"
	"time"

	"github.com/tuannvm/workorder-a2a/internal/common"
	"github.com/tuannvm/workorder-a2a/internal/models"
)

// updatedLayouts are the timestamp formats Jira emits for the updated field
var updatedLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02",
}

// Normalize maps a raw ticket payload into a canonical Ticket. Both the flat
// shape ({key, summary, priority, ...}) and the tracker-API shape
// ({id, key, fields: {...}}) are accepted; top-level values win over fields.
// Missing keys become absent fields. Normalize never fails.
func Normalize(raw map[string]interface{}) models.Ticket {
	fields, _ := raw["fields"].(map[string]interface{})
	lookup := func(name string) interface{} {
		if val, ok := raw[name]; ok && val != nil {
			return val
		}
		if fields != nil {
			return fields[name]
		}
		return nil
	}

	id, _ := common.GetStringValue(raw, "id", "jira_id")
	key, _ := common.GetStringValue(raw, "key", "ticketId")
	if key == "" && fields != nil {
		key, _ = common.GetStringValue(fields, "key")
	}

	return models.Ticket{
		ID:          id,
		Key:         key,
		Summary:     stringOf(lookup("summary")),
		Description: ExtractDescription(lookup("description")),
		Priority:    models.StringPtr(namedValue(lookup("priority"), "name")),
		Status:      models.StringPtr(namedValue(lookup("status"), "name")),
		Assignee:    models.StringPtr(namedValue(lookup("assignee"), "displayName", "name", "emailAddress")),
		Updated:     parseUpdated(lookup("updated")),
	}
}

// ExtractDescription flattens a description value. Strings pass through;
// structured documents (Atlassian Document Format) yield their paragraph text
// fragments in document order joined by newlines, falling back to the
// document's own text or its string form. Nil yields nil.
func ExtractDescription(raw interface{}) *string {
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		return &val
	case map[string]interface{}:
		if fragments := documentFragments(val); len(fragments) > 0 {
			joined := strings.Join(fragments, "\n")
			return &joined
		}
		if text, ok := val["text"].(string); ok && text != "" {
			return &text
		}
		s := fmt.Sprint(val)
		return &s
	default:
		s := fmt.Sprint(val)
		return &s
	}
}

// documentFragments collects the text of every inline node two levels below
// the document root (doc -> block -> paragraph content).
func documentFragments(doc map[string]interface{}) []string {
	blocks, _ := doc["content"].([]interface{})
	var fragments []string
	for _, b := range blocks {
		block, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		inlines, _ := block["content"].([]interface{})
		for _, in := range inlines {
			node, ok := in.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := node["text"].(string); ok && text != "" {
				fragments = append(fragments, text)
			}
		}
	}
	return fragments
}

// namedValue reads a plain string or the first non-empty named attribute of an object value
func namedValue(raw interface{}, keys ...string) string {
	switch val := raw.(type) {
	case string:
		return val
	case map[string]interface{}:
		s, _ := common.GetStringValue(val, keys...)
		return s
	}
	return ""
}

func stringOf(raw interface{}) string {
	switch val := raw.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func parseUpdated(raw interface{}) *time.Time {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	for _, layout := range updatedLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts
		}
	}
	return nil
}
