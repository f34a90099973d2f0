package jira

import (
	"errors"
	"os"
	"testing"

	"github.com/tuannvm/workorder-a2a/internal/models"
)

func TestTransformJiraWebhook(t *testing.T) {
	webhookData, err := os.ReadFile("testdata/jira-webhook.json")
	if err != nil {
		t.Fatalf("Failed to read sample webhook JSON: %v", err)
	}

	event, err := TransformJiraWebhook(webhookData)
	if err != nil {
		t.Fatalf("Failed to transform webhook: %v", err)
	}

	if event.TicketID != "DWOS-118" {
		t.Errorf("Expected TicketID to be DWOS-118, got %s", event.TicketID)
	}
	if event.Event != "updated" {
		t.Errorf("Expected Event to be updated, got %s", event.Event)
	}
	if event.UserName != "tmiller" {
		t.Errorf("Expected UserName to be tmiller, got %s", event.UserName)
	}
	if event.ProjectKey != "DWOS" {
		t.Errorf("Expected ProjectKey to be DWOS, got %s", event.ProjectKey)
	}
	if event.Timestamp != "2024-10-16T12:00:00Z" {
		t.Errorf("Expected Timestamp 2024-10-16T12:00:00Z, got %s", event.Timestamp)
	}

	if len(event.Changes) != 2 {
		t.Errorf("Expected 2 changes, got %d", len(event.Changes))
	}
	if val := event.Changes["status"]; val != "In Progress" {
		t.Errorf("Expected status change to be 'In Progress', got '%s'", val)
	}

	if !event.Indexable() {
		t.Error("Expected updated event with a key to be indexable")
	}
	if got := models.Deref(event.Ticket.Priority); got != "High" {
		t.Errorf("Expected priority High, got %q", got)
	}
	if got := models.Deref(event.Ticket.Assignee); got != "Sam Ortiz" {
		t.Errorf("Expected assignee Sam Ortiz, got %q", got)
	}
	want := "Sensors at 92C on boards 3-6.\nBubbles in coolant.\nFans pinned at 100%."
	if got := models.Deref(event.Ticket.Description); got != want {
		t.Errorf("Description = %q, want %q", got, want)
	}
}

func TestTransformJiraWebhook_Invalid(t *testing.T) {
	for name, payload := range map[string]string{
		"not json": `{`,
		"no issue": `{"webhookEvent":"jira:issue_created"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := TransformJiraWebhook([]byte(payload))
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestWebhookEventIndexable(t *testing.T) {
	event := &WebhookEvent{Event: "deleted", Ticket: models.Ticket{Key: "DWOS-1"}}
	if event.Indexable() {
		t.Error("deleted events must not be indexed")
	}
}
