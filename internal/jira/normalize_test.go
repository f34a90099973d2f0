package jira

import (
	"testing"

	"github.com/tuannvm/workorder-a2a/internal/models"
)

func TestNormalize_FlatShape(t *testing.T) {
	ticket := Normalize(map[string]interface{}{
		"id":          "10001",
		"key":         "DWOS-1",
		"summary":     "PDU breaker trip",
		"description": "Row C lost feed B",
		"priority":    "Critical",
		"status":      "To Do",
		"assignee":    "Ana",
		"updated":     "2024-10-16T08:30:00.000+0000",
	})

	if ticket.ID != "10001" || ticket.Key != "DWOS-1" {
		t.Errorf("identity = %q/%q", ticket.ID, ticket.Key)
	}
	if ticket.Summary != "PDU breaker trip" {
		t.Errorf("Summary = %q", ticket.Summary)
	}
	if models.Deref(ticket.Description) != "Row C lost feed B" {
		t.Errorf("Description = %v", ticket.Description)
	}
	if models.Deref(ticket.Priority) != "Critical" || models.Deref(ticket.Status) != "To Do" {
		t.Errorf("Priority/Status = %v/%v", ticket.Priority, ticket.Status)
	}
	if models.Deref(ticket.Assignee) != "Ana" {
		t.Errorf("Assignee = %v", ticket.Assignee)
	}
	if ticket.Updated == nil || ticket.Updated.Hour() != 8 {
		t.Errorf("Updated = %v", ticket.Updated)
	}
}

func TestNormalize_NestedShape(t *testing.T) {
	ticket := Normalize(map[string]interface{}{
		"id":  "10002",
		"key": "DWOS-2",
		"fields": map[string]interface{}{
			"summary":  "Switch flapping",
			"priority": map[string]interface{}{"name": "Medium"},
			"status":   map[string]interface{}{"name": "Done"},
			"assignee": map[string]interface{}{"displayName": "Lee"},
			"updated":  "not a timestamp",
		},
	})

	if ticket.Summary != "Switch flapping" {
		t.Errorf("Summary = %q", ticket.Summary)
	}
	if models.Deref(ticket.Priority) != "Medium" || models.Deref(ticket.Status) != "Done" {
		t.Errorf("Priority/Status = %v/%v", ticket.Priority, ticket.Status)
	}
	if models.Deref(ticket.Assignee) != "Lee" {
		t.Errorf("Assignee = %v", ticket.Assignee)
	}
	if ticket.Description != nil {
		t.Errorf("Description = %q, want absent", *ticket.Description)
	}
	if ticket.Updated != nil {
		t.Errorf("Updated = %v, want absent for unparseable input", ticket.Updated)
	}
}

func TestNormalize_MissingEverything(t *testing.T) {
	ticket := Normalize(map[string]interface{}{})
	if ticket.Key != "" || ticket.Summary != "" {
		t.Errorf("expected empty identity, got %+v", ticket)
	}
	if ticket.Priority != nil || ticket.Status != nil || ticket.Assignee != nil || ticket.Description != nil {
		t.Errorf("expected absent optional fields, got %+v", ticket)
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want *string
	}{
		{name: "nil", raw: nil, want: nil},
		{name: "plain string", raw: "fan failure", want: models.StringPtr("fan failure")},
		{
			name: "document fragments in order",
			raw: map[string]interface{}{
				"type": "doc",
				"content": []interface{}{
					map[string]interface{}{"content": []interface{}{
						map[string]interface{}{"text": "first"},
						map[string]interface{}{"text": "second"},
					}},
					"not a block",
					map[string]interface{}{"content": []interface{}{
						map[string]interface{}{"text": "third"},
					}},
				},
			},
			want: models.StringPtr("first\nsecond\nthird"),
		},
		{
			name: "document without fragments uses text",
			raw:  map[string]interface{}{"type": "doc", "text": "inline"},
			want: models.StringPtr("inline"),
		},
		{
			name: "document without text uses string form",
			raw:  map[string]interface{}{"type": "doc"},
			want: models.StringPtr("map[type:doc]"),
		},
		{name: "number", raw: 42.0, want: models.StringPtr("42")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDescription(tt.raw)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ExtractDescription() = %v, want %v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("ExtractDescription() = %q, want %q", *got, *tt.want)
			}
		})
	}
}
