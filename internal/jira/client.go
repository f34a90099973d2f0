package jira

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"

	"github.com/tuannvm/workorder-a2a/internal/config"
	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"github.com/tuannvm/workorder-a2a/internal/models"
)

// searchFields are the issue fields the work order registry consumes
var searchFields = []string{"summary", "description", "priority", "status", "assignee", "updated"}

// maxSearchPages bounds pagination of a single search
const maxSearchPages = 20

// Client represents a Jira API client
type Client struct {
	config      *config.Config
	instance    *v3.Client
	transitions map[string]string
}

// NewClient creates a new Jira client
func NewClient(cfg *config.Config) (*Client, error) {
	httpClient := &http.Client{
		Timeout: time.Second * 30,
	}

	instance, err := v3.New(httpClient, cfg.JiraBaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create jira client: %v", models.ErrDependencyUnavailable, err)
	}
	instance.Auth.SetBasicAuth(cfg.JiraUsername, cfg.JiraAPIToken)

	transitions := make(map[string]string, len(cfg.JiraTransitions))
	for name, id := range cfg.JiraTransitions {
		transitions[strings.ToLower(strings.TrimSpace(name))] = id
	}

	return &Client{
		config:      cfg,
		instance:    instance,
		transitions: transitions,
	}, nil
}

type searchRequest struct {
	JQL           string   `json:"jql"`
	MaxResults    int      `json:"maxResults"`
	Fields        []string `json:"fields"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

type searchResponse struct {
	Issues        []map[string]interface{} `json:"issues"`
	NextPageToken string                   `json:"nextPageToken"`
	IsLast        bool                     `json:"isLast"`
}

// Search runs a JQL query against /rest/api/3/search/jql and returns the raw
// issues in response order. An empty jql uses the configured default.
func (c *Client) Search(ctx context.Context, jql string) ([]map[string]interface{}, error) {
	if jql == "" {
		jql = c.config.JiraDefaultJQL
	}

	var issues []map[string]interface{}
	payload := searchRequest{
		JQL:        jql,
		MaxResults: c.config.JiraMaxResults,
		Fields:     searchFields,
	}
	for page := 0; page < maxSearchPages; page++ {
		req, err := c.instance.NewRequest(ctx, http.MethodPost, "rest/api/3/search/jql", "", payload)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		var resp searchResponse
		if _, err := c.instance.Call(req, &resp); err != nil {
			return nil, fmt.Errorf("%w: jira search failed: %v", models.ErrTransport, err)
		}
		issues = append(issues, resp.Issues...)

		if resp.IsLast || resp.NextPageToken == "" {
			break
		}
		payload.NextPageToken = resp.NextPageToken
	}

	log.Debugf("Jira search returned %d issues for %q", len(issues), jql)
	return issues, nil
}

// Transition moves an issue through its workflow. target may be a numeric
// transition id, a name from the configured name->id map, or a name matched
// against the transitions Jira reports as available for the issue.
func (c *Client) Transition(ctx context.Context, issueKey, target string) (*models.TransitionResult, error) {
	target = strings.TrimSpace(target)
	if issueKey == "" || target == "" {
		return nil, fmt.Errorf("%w: issue key and transition are required", models.ErrValidation)
	}

	id := target
	if !isDigits(id) {
		id = c.transitions[strings.ToLower(target)]
	}
	if isDigits(id) {
		if err := c.move(ctx, issueKey, id); err != nil {
			return nil, err
		}
		return &models.TransitionResult{OK: true, TransitionID: id}, nil
	}

	available, _, err := c.instance.Issue.Transitions(ctx, issueKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list transitions for %s: %v", models.ErrTransport, issueKey, err)
	}
	if available == nil || len(available.Transitions) == 0 {
		return nil, fmt.Errorf("%w: no transitions available for issue %s", models.ErrTransport, issueKey)
	}

	names := make([]string, 0, len(available.Transitions))
	for _, t := range available.Transitions {
		if t == nil {
			continue
		}
		names = append(names, t.Name)
		if !strings.EqualFold(t.Name, target) {
			continue
		}
		if err := c.move(ctx, issueKey, t.ID); err != nil {
			return nil, err
		}
		movedTo := target
		if t.To != nil && t.To.Name != "" {
			movedTo = t.To.Name
		}
		return &models.TransitionResult{OK: true, TransitionID: t.ID, MovedTo: movedTo}, nil
	}

	return nil, fmt.Errorf("%w: transition %q not found. Available: %s", models.ErrValidation, target, strings.Join(names, ", "))
}

func (c *Client) move(ctx context.Context, issueKey, transitionID string) error {
	log.Infof("Transitioning %s with transition %s", issueKey, transitionID)
	if _, err := c.instance.Issue.Move(ctx, issueKey, transitionID, nil); err != nil {
		return fmt.Errorf("%w: failed to transition %s: %v", models.ErrTransport, issueKey, err)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
