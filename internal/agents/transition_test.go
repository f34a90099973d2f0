package agents

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tuannvm/workorder-a2a/internal/config"
	"github.com/tuannvm/workorder-a2a/internal/events"
	"github.com/tuannvm/workorder-a2a/internal/jira"
	"github.com/tuannvm/workorder-a2a/internal/models"
)

// workflowJira serves the transition endpoints of one issue
type workflowJira struct {
	paths []string
	moves []string
}

func (f *workflowJira) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !strings.HasSuffix(r.URL.Path, "/transitions") {
		http.NotFound(w, r)
		return
	}
	f.paths = append(f.paths, r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		io.WriteString(w, `{"transitions":[{"id":"41","name":"Escalate","to":{"name":"Escalated"}},{"id":"51","name":"Park"}]}`)
	case http.MethodPost:
		var body struct {
			Transition struct {
				ID string `json:"id"`
			} `json:"transition"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.moves = append(f.moves, body.Transition.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func newTransitionFixture(t *testing.T) (*fixture, *workflowJira) {
	t.Helper()
	fake := &workflowJira{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := jira.NewClient(&config.Config{
		JiraBaseURL:     srv.URL,
		JiraUsername:    "bot@example.com",
		JiraAPIToken:    "token",
		JiraTransitions: map[string]string{"done": "31"},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	f := newFixture(t, false)
	f.agent.tracker = client
	return f, fake
}

func TestTransition_DiscoversNamedTransition(t *testing.T) {
	f, fake := newTransitionFixture(t)

	res, err := f.agent.Dispatch(context.Background(), &models.ActionRequest{
		Action:     models.ActionTransition,
		ID:         "10118",
		Transition: "escalate",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	tr := res.(*models.TransitionResult)
	if !tr.OK || tr.TransitionID != "41" || tr.MovedTo != "Escalated" {
		t.Errorf("result = %+v", tr)
	}
	if len(fake.moves) != 1 || fake.moves[0] != "41" {
		t.Errorf("moves = %v", fake.moves)
	}
	if !strings.Contains(fake.paths[0], "DWOS-118") {
		t.Errorf("registry id should resolve to the issue key, got %v", fake.paths)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != events.TypeTransitioned {
		t.Errorf("events = %v", got)
	}
	rec, _ := f.registry.Get("DWOS-118")
	if rec.Completed {
		t.Error("transition must not mark the registry")
	}
}

func TestTransition_UnknownNameListsAvailable(t *testing.T) {
	f, fake := newTransitionFixture(t)

	_, err := f.agent.Dispatch(context.Background(), &models.ActionRequest{
		Action:     models.ActionTransition,
		ID:         "OPS-7",
		Transition: "Teleport",
	})
	if !errors.Is(err, models.ErrValidation) || !strings.Contains(err.Error(), "Escalate, Park") {
		t.Fatalf("error = %v", err)
	}
	if len(fake.moves) != 0 {
		t.Errorf("moves = %v", fake.moves)
	}
}

func TestTransition_RequiresIDAndTarget(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.agent.Dispatch(context.Background(), &models.ActionRequest{Action: models.ActionTransition, ID: "DWOS-118"})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("error = %v", err)
	}
	if len(f.tracker.calls) != 0 {
		t.Errorf("tracker calls = %v", f.tracker.calls)
	}
}
