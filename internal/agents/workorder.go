package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tuannvm/workorder-a2a/internal/common"
	"github.com/tuannvm/workorder-a2a/internal/events"
	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"github.com/tuannvm/workorder-a2a/internal/models"
	"github.com/tuannvm/workorder-a2a/internal/rag"
	"github.com/tuannvm/workorder-a2a/internal/registry"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"
	"trpc.group/trpc-go/trpc-a2a-go/server"
	"trpc.group/trpc-go/trpc-a2a-go/taskmanager"
)

// Tracker targets used by the lifecycle actions
const (
	TargetDone       = "done"
	TargetInProgress = "in progress"
)

// Lifecycle result statuses
const (
	LifecycleCompleted        = "completed"
	LifecycleStarted          = "started"
	LifecycleCompletedLocally = "completed_locally"
	LifecycleStartedLocally   = "started_locally"
)

// Transitioner applies workflow transitions in the issue tracker
type Transitioner interface {
	Transition(ctx context.Context, issueKey, target string) (*models.TransitionResult, error)
}

// Generator produces work orders
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error)
}

// Ingester writes tickets and operator text into the retrieval index
type Ingester interface {
	IngestTracker(ctx context.Context) (*rag.IngestResult, error)
	IngestManual(ctx context.Context, raws []map[string]interface{}) (*rag.IngestResult, error)
	IngestTickets(ctx context.Context, tickets []models.Ticket) (*rag.IngestResult, error)
	IngestText(ctx context.Context, text, source string) (*rag.IngestResult, error)
}

// Dependencies wires the agent
type Dependencies struct {
	Registry  *registry.Registry
	Generator Generator
	Ingester  Ingester
	Tracker   Transitioner
	Events    events.Publisher
	// LocalFirst marks the registry before calling the tracker on
	// complete/start and reports *_locally when the tracker then fails.
	LocalFirst bool
}

// WorkOrderAgent serves work order actions over A2A
type WorkOrderAgent struct {
	registry       *registry.Registry
	generator      Generator
	ingester       Ingester
	tracker        Transitioner
	events         events.Publisher
	publishTimeout time.Duration
	localFirst     bool
}

// NewWorkOrderAgent creates a new WorkOrderAgent
func NewWorkOrderAgent(deps Dependencies) *WorkOrderAgent {
	pub := deps.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &WorkOrderAgent{
		registry:       deps.Registry,
		generator:      deps.Generator,
		ingester:       deps.Ingester,
		tracker:        deps.Tracker,
		events:         pub,
		publishTimeout: events.DefaultPublishTimeout,
		localFirst:     deps.LocalFirst,
	}
}

// Skills advertised on the agent card
func Skills() []server.AgentSkill {
	return []server.AgentSkill{
		{
			ID:          "rank-work-orders",
			Name:        "Rank work orders",
			Description: common.StringPtr("Refresh, list and inspect ranked work orders built from Jira incidents"),
		},
		{
			ID:          "update-work-orders",
			Name:        "Update work orders",
			Description: common.StringPtr("Record notes, mark steps, start, complete and transition work orders"),
		},
		{
			ID:          "generate-work-order",
			Name:        "Generate work order",
			Description: common.StringPtr("Generate a grounded work order with a baseline fallback"),
		},
		{
			ID:          "ingest-history",
			Name:        "Ingest history",
			Description: common.StringPtr("Index Jira tickets and operator documents for retrieval"),
		},
	}
}

// LifecycleResult reports a complete or start action
type LifecycleResult struct {
	Status       string                   `json:"status"`
	WorkOrder    models.WorkOrderRecord   `json:"work_order"`
	Transition   *models.TransitionResult `json:"transition,omitempty"`
	TrackerError string                   `json:"tracker_error,omitempty"`
}

// ErrorResult is the payload of a failed task
type ErrorResult struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Process implements the TaskProcessor interface
func (a *WorkOrderAgent) Process(ctx context.Context, taskID string, message protocol.Message, handle taskmanager.TaskHandle) error {
	log.Debugf("Received task with ID: %s", taskID)

	if err := handle.UpdateStatus(protocol.TaskState("working"), nil); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	var req models.ActionRequest
	if err := common.ExtractActionRequest(message, &req); err != nil {
		return a.fail(taskID, handle, err)
	}

	log.Infof("Task %s: action %s id=%q", taskID, req.Action, req.ID)
	result, err := a.Dispatch(ctx, &req)
	if err != nil {
		return a.fail(taskID, handle, err)
	}

	if gen, ok := result.(*models.GenerationResult); ok && gen.WorkOrder != nil {
		a.addWorkOrderArtifact(handle, gen)
	}

	msg, err := common.ResultMessage(result)
	if err != nil {
		return a.fail(taskID, handle, err)
	}
	if err := handle.UpdateStatus(protocol.TaskState("completed"), msg); err != nil {
		log.Errorf("Failed to update task status: %v", err)
		return err
	}

	log.Infof("Task %s completed successfully", taskID)
	return nil
}

// Dispatch runs one action and returns its JSON-serialisable result
func (a *WorkOrderAgent) Dispatch(ctx context.Context, req *models.ActionRequest) (interface{}, error) {
	switch req.Action {
	case models.ActionRefresh:
		n, err := a.registry.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		a.publish(ctx, events.Event{Type: events.TypeRefreshed, Data: map[string]interface{}{"count": n}})
		return map[string]int{"count": n}, nil

	case models.ActionList:
		records, err := a.registry.List()
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"count": len(records), "work_orders": records}, nil

	case models.ActionGet:
		rec, err := a.registry.Get(req.ID)
		if err != nil {
			return nil, err
		}
		return rec, nil

	case models.ActionHighestPriority:
		rec, err := a.registry.HighestPriority()
		if err != nil {
			return nil, err
		}
		id := rec.JiraID
		if id == "" {
			id = rec.Key
		}
		return map[string]interface{}{"id": id, "work_order": rec}, nil

	case models.ActionNote:
		note, err := a.registry.RecordNote(req.ID, req.Author, req.Note)
		if err != nil {
			return nil, err
		}
		a.publish(ctx, events.Event{Type: events.TypeNoteAdded, Key: req.ID, Actor: req.Author, Data: map[string]interface{}{"note": req.Note}})
		return note, nil

	case models.ActionStep:
		if req.Index == nil {
			return nil, fmt.Errorf("%w: step index is required", models.ErrValidation)
		}
		step, err := a.registry.MarkStep(req.ID, *req.Index, req.Status)
		if err != nil {
			return nil, err
		}
		a.publish(ctx, events.Event{Type: events.TypeStepUpdated, Key: req.ID, Actor: req.Author, Data: map[string]interface{}{"index": *req.Index, "status": step.Status}})
		return step, nil

	case models.ActionComplete:
		return a.lifecycle(ctx, req.ID, TargetDone, a.registry.MarkCompleted, LifecycleCompleted, LifecycleCompletedLocally, events.TypeCompleted)

	case models.ActionStart:
		return a.lifecycle(ctx, req.ID, TargetInProgress, a.registry.MarkInProgress, LifecycleStarted, LifecycleStartedLocally, events.TypeStarted)

	case models.ActionTransition:
		return a.transition(ctx, req.ID, req.Transition)

	case models.ActionGenerate:
		res, err := a.generator.Generate(ctx, req.GenerationRequest)
		if err != nil {
			return nil, err
		}
		a.publish(ctx, events.Event{Type: events.TypeGenerated, Key: res.IssueID, Data: map[string]interface{}{"status": res.Status, "warning": res.Warning}})
		return res, nil

	case models.ActionIngestJira:
		return a.ingested(ctx, "jira")(a.ingester.IngestTracker(ctx))

	case models.ActionIngestManual:
		if len(req.Tickets) == 0 {
			return nil, fmt.Errorf("%w: tickets are required", models.ErrValidation)
		}
		return a.ingested(ctx, "manual")(a.ingester.IngestManual(ctx, req.Tickets))

	case models.ActionIngestText:
		return a.ingested(ctx, "text")(a.ingester.IngestText(ctx, req.Text, req.Source))

	default:
		return nil, fmt.Errorf("%w: unknown action %q", models.ErrValidation, req.Action)
	}
}

// lifecycle applies a tracker transition and a registry mark as a saga. By
// default the tracker moves first and the registry is only marked once the
// tracker confirmed. In local-first mode the registry is marked first and a
// tracker failure is reported as the *_locally status.
func (a *WorkOrderAgent) lifecycle(
	ctx context.Context,
	id, target string,
	mark func(string) (models.WorkOrderRecord, error),
	okStatus, localStatus, eventType string,
) (*LifecycleResult, error) {
	rec, err := a.registry.Get(id)
	if err != nil {
		return nil, err
	}

	if a.localFirst {
		rec, err = mark(id)
		if err != nil {
			return nil, err
		}
		tr, err := a.tracker.Transition(ctx, rec.Key, target)
		if err != nil {
			log.Warnf("Work order %s marked locally but tracker transition failed: %v", rec.Key, err)
			a.publish(ctx, events.Event{Type: events.TypeTrackerFailed, Key: rec.Key, Data: map[string]interface{}{"target": target, "error": err.Error()}})
			return &LifecycleResult{Status: localStatus, WorkOrder: rec, TrackerError: err.Error()}, nil
		}
		a.publish(ctx, events.Event{Type: eventType, Key: rec.Key, Data: map[string]interface{}{"transition": tr.TransitionID}})
		return &LifecycleResult{Status: okStatus, WorkOrder: rec, Transition: tr}, nil
	}

	tr, err := a.tracker.Transition(ctx, rec.Key, target)
	if err != nil {
		a.publish(ctx, events.Event{Type: events.TypeTrackerFailed, Key: rec.Key, Data: map[string]interface{}{"target": target, "error": err.Error()}})
		return nil, fmt.Errorf("tracker transition for %s failed, work order left unchanged: %w", rec.Key, err)
	}
	rec, err = mark(id)
	if err != nil {
		return nil, err
	}
	a.publish(ctx, events.Event{Type: eventType, Key: rec.Key, Data: map[string]interface{}{"transition": tr.TransitionID}})
	return &LifecycleResult{Status: okStatus, WorkOrder: rec, Transition: tr}, nil
}

// transition moves an issue through its tracker workflow without touching
// the registry. Ids the registry knows are resolved to their key; anything
// else is passed to the tracker as an issue key.
func (a *WorkOrderAgent) transition(ctx context.Context, id, target string) (*models.TransitionResult, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("%w: id and transition are required", models.ErrValidation)
	}
	key := id
	if rec, err := a.registry.Get(id); err == nil {
		key = rec.Key
	} else if !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrNotLoaded) {
		return nil, err
	}

	tr, err := a.tracker.Transition(ctx, key, target)
	if err != nil {
		return nil, err
	}
	a.publish(ctx, events.Event{Type: events.TypeTransitioned, Key: key, Data: map[string]interface{}{
		"transition": tr.TransitionID,
		"moved_to":   tr.MovedTo,
	}})
	return tr, nil
}

func (a *WorkOrderAgent) ingested(ctx context.Context, source string) func(*rag.IngestResult, error) (interface{}, error) {
	return func(res *rag.IngestResult, err error) (interface{}, error) {
		if err != nil {
			return nil, err
		}
		a.publish(ctx, events.Event{Type: events.TypeIngested, Data: map[string]interface{}{
			"source":             source,
			"ingested_documents": res.IngestedDocuments,
			"tickets_indexed":    res.TicketsIndexed,
		}})
		return res, nil
	}
}

// publish never fails an action; event delivery is best effort and bounded
// by publishTimeout
func (a *WorkOrderAgent) publish(ctx context.Context, event events.Event) {
	ctx, cancel := context.WithTimeout(ctx, a.publishTimeout)
	defer cancel()
	if err := a.events.Publish(ctx, event); err != nil {
		log.Warnf("Failed to publish %s event: %v", event.Type, err)
	}
}

func (a *WorkOrderAgent) addWorkOrderArtifact(handle taskmanager.TaskHandle, res *models.GenerationResult) {
	raw, err := json.Marshal(res.WorkOrder)
	if err != nil {
		log.Warnf("Failed to encode work order artifact: %v", err)
		return
	}
	var data interface{}
	_ = json.Unmarshal(raw, &data)
	artifact := protocol.Artifact{
		Name:        common.StringPtr("work_order"),
		Description: common.StringPtr(fmt.Sprintf("Work order (%s)", res.Status)),
		Parts:       []protocol.Part{&protocol.DataPart{Type: "data", Data: data}},
		Metadata: map[string]interface{}{
			"status":  string(res.Status),
			"warning": res.Warning,
		},
	}
	if err := handle.AddArtifact(artifact); err != nil {
		log.Warnf("Failed to add artifact: %v", err)
	}
}

func (a *WorkOrderAgent) fail(taskID string, handle taskmanager.TaskHandle, err error) error {
	log.Warnf("Task %s failed: %v", taskID, err)
	msg, encErr := common.ResultMessage(ErrorResult{Error: err.Error(), Kind: ErrorKind(err)})
	if encErr != nil {
		msg = &protocol.Message{Parts: []protocol.Part{protocol.NewTextPart(err.Error())}}
	}
	if updErr := handle.UpdateStatus(protocol.TaskState("failed"), msg); updErr != nil {
		log.Errorf("Failed to update task status: %v", updErr)
		return updErr
	}
	return nil
}

// ErrorKind names the taxonomy class of an error
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, models.ErrNotLoaded):
		return "not_loaded"
	case errors.Is(err, models.ErrDependencyUnavailable):
		return "dependency_unavailable"
	case errors.Is(err, models.ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}
