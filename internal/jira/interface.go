package jira

import (
	"context"

	"github.com/tuannvm/workorder-a2a/internal/config"
	"github.com/tuannvm/workorder-a2a/internal/models"
)

// IssueTracker defines the operations the work order service needs from Jira
type IssueTracker interface {
	// Search runs a JQL query and returns raw, non-normalized issue payloads
	Search(ctx context.Context, jql string) ([]map[string]interface{}, error)
	// Transition applies a workflow transition given a numeric id or a transition name
	Transition(ctx context.Context, issueKey, target string) (*models.TransitionResult, error)
}

// NewAtlassianClient creates a new Jira client based on go-atlassian
func NewAtlassianClient(cfg *config.Config) (IssueTracker, error) {
	return NewClient(cfg)
}
