package jira

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tuannvm/workorder-a2a/internal/models"
)

// JiraWebhookPayload represents the standard Jira webhook payload structure
type JiraWebhookPayload struct {
	ID           int                    `json:"id"`
	Timestamp    int64                  `json:"timestamp"`
	Issue        map[string]interface{} `json:"issue"`
	User         JiraUser               `json:"user"`
	Changelog    *Changelog             `json:"changelog,omitempty"`
	WebhookEvent string                 `json:"webhookEvent"`
}

// JiraUser represents a Jira user in the webhook
type JiraUser struct {
	Name         string `json:"name"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

// Changelog represents changes made in a Jira issue update
type Changelog struct {
	Items []ChangelogItem `json:"items"`
}

// ChangelogItem represents a single change in a Jira changelog
type ChangelogItem struct {
	Field      string `json:"field"`
	FromString string `json:"fromString"`
	ToString   string `json:"toString"`
}

// WebhookEvent is the internal form of a Jira issue webhook
type WebhookEvent struct {
	Event      string            `json:"event"` // "created", "updated", "deleted", ...
	TicketID   string            `json:"ticketId"`
	ProjectKey string            `json:"projectKey"`
	UserName   string            `json:"userName"`
	Timestamp  string            `json:"timestamp"`
	Changes    map[string]string `json:"changes,omitempty"`
	Ticket     models.Ticket     `json:"ticket"`
}

// Indexable reports whether the event carries ticket content worth indexing
func (e *WebhookEvent) Indexable() bool {
	return e.Ticket.Key != "" && (e.Event == "created" || e.Event == "updated")
}

// TransformJiraWebhook converts a standard Jira webhook payload to a WebhookEvent
func TransformJiraWebhook(payload []byte) (*WebhookEvent, error) {
	var jiraWebhook JiraWebhookPayload
	if err := json.Unmarshal(payload, &jiraWebhook); err != nil {
		return nil, fmt.Errorf("%w: invalid webhook payload: %v", models.ErrValidation, err)
	}
	if jiraWebhook.Issue == nil {
		return nil, fmt.Errorf("%w: webhook payload has no issue", models.ErrValidation)
	}

	ticket := Normalize(jiraWebhook.Issue)
	event := &WebhookEvent{
		Event:    getEventTypeFromWebhookEvent(jiraWebhook.WebhookEvent),
		TicketID: ticket.Key,
		UserName: jiraWebhook.User.Name,
		Ticket:   ticket,
	}
	if event.UserName == "" {
		event.UserName = jiraWebhook.User.DisplayName
	}

	// Extract project key from ticket key (e.g., "DWOS" from "DWOS-118")
	if parts := strings.Split(ticket.Key, "-"); len(parts) > 1 {
		event.ProjectKey = parts[0]
	}

	if jiraWebhook.Timestamp > 0 {
		event.Timestamp = time.UnixMilli(jiraWebhook.Timestamp).UTC().Format(time.RFC3339)
	} else {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if jiraWebhook.Changelog != nil && len(jiraWebhook.Changelog.Items) > 0 {
		event.Changes = make(map[string]string)
		for _, item := range jiraWebhook.Changelog.Items {
			event.Changes[item.Field] = item.ToString
		}
	}

	return event, nil
}

// getEventTypeFromWebhookEvent extracts the simplified event type from the full webhook event
func getEventTypeFromWebhookEvent(webhookEvent string) string {
	switch webhookEvent {
	case "jira:issue_created":
		return "created"
	case "jira:issue_updated":
		return "updated"
	case "jira:issue_deleted":
		return "deleted"
	default:
		if parts := strings.Split(webhookEvent, ":"); len(parts) > 1 {
			return parts[1]
		}
		return webhookEvent
	}
}
