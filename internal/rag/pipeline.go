// Package rag runs the retrieve, plan and generate pipeline that turns an
// incident into a work order, degrading to a baseline work order whenever a
// model-backed stage fails.
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tuannvm/workorder-a2a/internal/baseline"
	"github.com/tuannvm/workorder-a2a/internal/common"
	"github.com/tuannvm/workorder-a2a/internal/index"
	"github.com/tuannvm/workorder-a2a/internal/llm"
	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"github.com/tuannvm/workorder-a2a/internal/models"
)

// Defaults for pipeline options
const (
	DefaultTopK         = 4
	MaxTopK             = 10
	DefaultStageTimeout = 45 * time.Second
	DefaultTemperature  = 0.2
)

// Stage names
const (
	StageRetrieve = "retrieve"
	StagePlan     = "plan"
	StageGenerate = "generate"
)

// Failure kinds reported in fallback warnings
const (
	FailureTimeout     = "timeout"
	FailureCanceled    = "canceled"
	FailureTransport   = "transport_error"
	FailureMalformed   = "malformed_response"
	FailureUnavailable = "unavailable"
)

var errEmptyCompletion = errors.New("model returned an empty completion")

// RecordLookup resolves work order records by tracker id or key
type RecordLookup interface {
	Get(id string) (models.WorkOrderRecord, error)
}

// Retriever finds the chunks most similar to a query
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]index.Hit, error)
}

// Options configure the pipeline
type Options struct {
	TopK         int
	StageTimeout time.Duration
	Temperature  float64
	MaxTokens    int
}

// GenerationState is the per-request working set. It is owned by a single
// Generate call and never shared.
type GenerationState struct {
	Incident       string
	DesiredOutcome string
	OperatorNotes  string
	TopK           int
	Context        string
	Sources        []models.Source
	Plan           string
	WorkOrder      *models.WorkOrder
}

// StageError records which stage failed and how
type StageError struct {
	Stage string
	Kind  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline generates work orders
type Pipeline struct {
	records   RecordLookup
	retriever Retriever
	generator llm.TextGenerator
	opts      Options
}

// NewPipeline creates a pipeline. Zero options take the package defaults.
func NewPipeline(records RecordLookup, retriever Retriever, generator llm.TextGenerator, opts Options) *Pipeline {
	if opts.TopK == 0 {
		opts.TopK = DefaultTopK
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	return &Pipeline{
		records:   records,
		retriever: retriever,
		generator: generator,
		opts:      opts,
	}
}

// Generate produces a work order for the request. Stage failures never
// surface as errors: they yield a fallback result carrying a warning. Errors
// are returned only for invalid input or an unknown lookup key.
func (p *Pipeline) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	topK := req.TopK
	if topK == 0 {
		topK = p.opts.TopK
	}
	if topK < 1 || topK > MaxTopK {
		return nil, fmt.Errorf("%w: top_k must be within [1,%d], got %d", models.ErrValidation, MaxTopK, topK)
	}

	state := &GenerationState{
		DesiredOutcome: strings.TrimSpace(req.DesiredOutcome),
		OperatorNotes:  strings.TrimSpace(req.OperatorNotes),
		TopK:           topK,
	}

	var record *models.WorkOrderRecord
	lookupKey := req.LookupKey()
	subject := strings.TrimSpace(req.IncidentSummary)
	if lookupKey != "" {
		rec, err := p.records.Get(lookupKey)
		if err != nil {
			return nil, err
		}
		if len(rec.MissingFields) > 0 {
			log.Infof("Refusing generation for %s: missing %v", lookupKey, rec.MissingFields)
			return &models.GenerationResult{
				Status:        models.GenerationRefused,
				Sources:       []models.Source{},
				IssueID:       lookupKey,
				MissingFields: rec.MissingFields,
				Message:       RefusedMessage,
			}, nil
		}
		record = &rec
		state.Incident = rec.ContextText()
		if rec.Summary != "" {
			subject = rec.Summary
		} else if subject == "" {
			subject = rec.Key
		}
	} else {
		if subject == "" {
			return nil, fmt.Errorf("%w: incident_summary is required when no issue id is provided", models.ErrValidation)
		}
		state.Incident = subject
	}

	if err := p.run(ctx, state); err != nil {
		log.Warnf("Generation for %q degraded to baseline: %v", subject, err)
		return fallback(lookupKey, subject, record, err), nil
	}

	return &models.GenerationResult{
		Status:    models.GenerationGenerated,
		WorkOrder: state.WorkOrder,
		Plan:      &state.Plan,
		Sources:   state.Sources,
		IssueID:   lookupKey,
	}, nil
}

func (p *Pipeline) run(ctx context.Context, state *GenerationState) error {
	stages := []struct {
		name string
		fn   func(context.Context, *GenerationState) error
	}{
		{StageRetrieve, p.retrieve},
		{StagePlan, p.plan},
		{StageGenerate, p.generate},
	}
	for _, stage := range stages {
		if err := p.runStage(ctx, stage.name, state, stage.fn); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, name string, state *GenerationState, fn func(context.Context, *GenerationState) error) error {
	stageCtx, cancel := context.WithTimeout(ctx, p.opts.StageTimeout)
	defer cancel()

	start := time.Now()
	err := fn(stageCtx, state)
	if err == nil {
		log.Debugf("Stage %s finished in %s", name, time.Since(start))
		return nil
	}
	// a stage that ignores its context still counts as timed out
	if stageCtx.Err() != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", stageCtx.Err(), err)
	}
	return &StageError{Stage: name, Kind: classify(err), Err: err}
}

func (p *Pipeline) retrieve(ctx context.Context, s *GenerationState) error {
	hits, err := p.retriever.Search(ctx, composeQuestion(s.Incident, s.DesiredOutcome), s.TopK)
	if err != nil {
		return err
	}
	chunks := make([]string, 0, len(hits))
	s.Sources = make([]models.Source, 0, len(hits))
	for _, h := range hits {
		chunks = append(chunks, h.Chunk.Content)
		s.Sources = append(s.Sources, models.Source{SourceID: h.SourceID(), Summary: h.Summary()})
	}
	s.Context = strings.Join(chunks, contextSeparator)
	return nil
}

func (p *Pipeline) plan(ctx context.Context, s *GenerationState) error {
	text, err := p.complete(ctx, planMessages(s))
	if err != nil {
		return err
	}
	s.Plan = text
	return nil
}

func (p *Pipeline) generate(ctx context.Context, s *GenerationState) error {
	text, err := p.complete(ctx, generateMessages(s))
	if err != nil {
		return err
	}
	s.WorkOrder = ParseWorkOrder(text)
	return nil
}

func (p *Pipeline) complete(ctx context.Context, messages []llm.Message) (string, error) {
	text, err := p.generator.Complete(ctx, messages, llm.CompletionOptions{
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}

// ParseWorkOrder reads a model answer as a work order: the whole text as a
// JSON object, else the first JSON object embedded in it, else the raw text.
// List fields tolerate non-string elements.
func ParseWorkOrder(text string) *models.WorkOrder {
	candidates := []string{text}
	if extracted, err := common.ExtractJSON(text); err == nil && extracted != text {
		candidates = append(candidates, extracted)
	}
	for _, c := range candidates {
		if !strings.HasPrefix(strings.TrimSpace(c), "{") {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(c), &m); err != nil || m == nil {
			continue
		}
		refs := stringList(m["jira_refs"])
		if len(refs) == 0 {
			refs = stringList(m["jira_links"])
		}
		return &models.WorkOrder{
			Title:      textValue(m["title"]),
			Impact:     textValue(m["impact"]),
			Steps:      stringList(m["steps"]),
			Materials:  stringList(m["materials"]),
			Validation: stringList(m["validation"]),
			JiraRefs:   refs,
		}
	}
	return &models.WorkOrder{RawText: text}
}

// stringList flattens a list field; a lone scalar counts as one element
func stringList(v interface{}) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := textValue(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := textValue(val); s != "" {
			return []string{s}
		}
		return nil
	}
}

// textValue renders one element. Objects yield their action, description,
// text or name when present.
func textValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]interface{}:
		for _, key := range []string{"action", "description", "text", "name", "step"} {
			if s, ok := val[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	default:
		return fmt.Sprint(val)
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, errEmptyCompletion):
		return FailureMalformed
	case errors.Is(err, models.ErrDependencyUnavailable):
		return FailureUnavailable
	default:
		return FailureTransport
	}
}

// fallback builds the deterministic baseline result
func fallback(lookupKey, subject string, record *models.WorkOrderRecord, cause error) *models.GenerationResult {
	steps := baseline.DefaultSteps()
	refs := []string{}
	if record != nil {
		if len(record.Steps) > 0 {
			steps = make([]string, len(record.Steps))
			for i, s := range record.Steps {
				steps[i] = s.Description
			}
		}
		refs = append(refs, record.Key)
	}

	warning := "Fell back to baseline plan: " + cause.Error()
	var se *StageError
	if errors.As(cause, &se) {
		warning = fmt.Sprintf("Fell back to baseline plan: %s failed (%s)", se.Stage, se.Kind)
	}

	plan := FallbackPlan
	return &models.GenerationResult{
		Status: models.GenerationFallback,
		WorkOrder: &models.WorkOrder{
			Title:      "Work Order for " + subject,
			Impact:     FallbackImpact,
			Steps:      steps,
			Materials:  []string{},
			Validation: append([]string(nil), FallbackValidation...),
			JiraRefs:   refs,
		},
		Plan:    &plan,
		Sources: []models.Source{},
		IssueID: lookupKey,
		Warning: warning,
	}
}
