// Package registry keeps the in-memory, ranked set of work order records
// derived from tracker tickets.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tuannvm/workorder-a2a/internal/baseline"
	"github.com/tuannvm/workorder-a2a/internal/jira"
	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"github.com/tuannvm/workorder-a2a/internal/models"
	"github.com/tuannvm/workorder-a2a/internal/scoring"
)

// StatusInProgress is the status marker set by MarkInProgress
const StatusInProgress = "In Progress"

var completedStatuses = map[string]bool{"done": true, "closed": true, "resolved": true}

// TicketSource supplies raw ticket payloads
type TicketSource interface {
	Search(ctx context.Context, jql string) ([]map[string]interface{}, error)
}

// snapshot is one fully built generation of the registry. order keeps the
// upstream fetch order of keys for stable ranking.
type snapshot struct {
	records map[string]*models.WorkOrderRecord
	order   []string
}

// Registry is the process-wide work order store. Refresh builds a new
// snapshot and swaps it in under the write lock.
type Registry struct {
	source TicketSource
	tables *scoring.Tables
	jql    string
	now    func() time.Time

	mu   sync.RWMutex
	snap *snapshot
}

// New creates an empty registry. Call EnsureLoaded or Refresh before reading.
func New(source TicketSource, tables *scoring.Tables, jql string) *Registry {
	if tables == nil {
		tables = scoring.DefaultTables()
	}
	return &Registry{
		source: source,
		tables: tables,
		jql:    jql,
		now:    time.Now,
	}
}

// Refresh replaces the registry with the tickets the source currently returns
// and reports how many records were loaded.
func (r *Registry) Refresh(ctx context.Context) (int, error) {
	raws, err := r.source.Search(ctx, r.jql)
	if err != nil {
		return 0, fmt.Errorf("registry refresh failed: %w", err)
	}

	next := &snapshot{records: make(map[string]*models.WorkOrderRecord, len(raws))}
	for _, raw := range raws {
		ticket := jira.Normalize(raw)
		if ticket.Key == "" {
			log.Warnf("Skipping ticket without a key (id=%q)", ticket.ID)
			continue
		}
		if _, seen := next.records[ticket.Key]; !seen {
			next.order = append(next.order, ticket.Key)
		}
		next.records[ticket.Key] = r.buildRecord(ticket)
	}

	r.mu.Lock()
	r.snap = next
	r.mu.Unlock()

	log.Infof("Registry refreshed with %d work orders", len(next.order))
	return len(next.order), nil
}

// EnsureLoaded performs the first refresh if the registry was never loaded
func (r *Registry) EnsureLoaded(ctx context.Context) error {
	if r.Loaded() {
		return nil
	}
	_, err := r.Refresh(ctx)
	return err
}

// Loaded reports whether a refresh has completed
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap != nil
}

func (r *Registry) buildRecord(ticket models.Ticket) *models.WorkOrderRecord {
	score, missing := r.tables.Evaluate(ticket)

	descriptions := baseline.SelectSteps(ticket.Summary, models.Deref(ticket.Description), models.Deref(ticket.Priority))
	steps := make([]models.Step, len(descriptions))
	for i, d := range descriptions {
		steps[i] = models.Step{Description: d, Status: models.StepPending}
	}

	status := strings.ToLower(strings.TrimSpace(models.Deref(ticket.Status)))
	return &models.WorkOrderRecord{
		Key:           ticket.Key,
		JiraID:        ticket.ID,
		Summary:       ticket.Summary,
		Description:   ticket.Description,
		Priority:      ticket.Priority,
		Status:        ticket.Status,
		Assignee:      ticket.Assignee,
		Updated:       ticket.Updated,
		MissingFields: missing,
		Score:         score,
		Steps:         steps,
		Notes:         []models.Note{},
		Completed:     completedStatuses[status],
	}
}

// List returns copies of all records ranked by score, highest first. Equal
// scores keep the upstream fetch order.
func (r *Registry) List() ([]models.WorkOrderRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snap == nil {
		return nil, models.ErrNotLoaded
	}

	out := make([]models.WorkOrderRecord, 0, len(r.snap.order))
	for _, key := range r.snap.order {
		out = append(out, r.snap.records[key].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

// HighestPriority returns the top ranked record
func (r *Registry) HighestPriority() (models.WorkOrderRecord, error) {
	records, err := r.List()
	if err != nil {
		return models.WorkOrderRecord{}, err
	}
	if len(records) == 0 {
		return models.WorkOrderRecord{}, fmt.Errorf("%w: no work orders available", models.ErrNotFound)
	}
	return records[0], nil
}

// Get returns a copy of the record matching a tracker id or key
func (r *Registry) Get(id string) (models.WorkOrderRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, err := r.lookup(id)
	if err != nil {
		return models.WorkOrderRecord{}, err
	}
	return rec.Clone(), nil
}

// lookup must be called with mu held
func (r *Registry) lookup(id string) (*models.WorkOrderRecord, error) {
	if r.snap == nil {
		return nil, models.ErrNotLoaded
	}
	if id == "" {
		return nil, fmt.Errorf("%w: work order id is required", models.ErrValidation)
	}
	for _, key := range r.snap.order {
		if rec := r.snap.records[key]; rec.JiraID == id {
			return rec, nil
		}
	}
	if rec, ok := r.snap.records[id]; ok {
		return rec, nil
	}
	return nil, fmt.Errorf("%w: unknown work order %s", models.ErrNotFound, id)
}

// RecordNote appends a timestamped note to a work order
func (r *Registry) RecordNote(id, author, note string) (models.Note, error) {
	if strings.TrimSpace(note) == "" {
		return models.Note{}, fmt.Errorf("%w: note text is required", models.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.lookup(id)
	if err != nil {
		return models.Note{}, err
	}
	entry := models.Note{Author: author, Note: note, Timestamp: r.now().UTC()}
	rec.Notes = append(rec.Notes, entry)
	return entry, nil
}

// MarkStep sets the status of one step. An index outside the step list
// fails with ErrIndexOutOfRange and leaves the steps untouched.
func (r *Registry) MarkStep(id string, index int, status models.StepStatus) (models.Step, error) {
	if !status.Valid() {
		return models.Step{}, fmt.Errorf("%w: invalid step status %q", models.ErrValidation, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.lookup(id)
	if err != nil {
		return models.Step{}, err
	}
	if index < 0 || index >= len(rec.Steps) {
		return models.Step{}, fmt.Errorf("%w: step %d of %d", models.ErrIndexOutOfRange, index, len(rec.Steps))
	}
	rec.Steps[index].Status = status
	return rec.Steps[index], nil
}

// MarkCompleted flags a work order as completed. It does not touch the tracker.
func (r *Registry) MarkCompleted(id string) (models.WorkOrderRecord, error) {
	return r.mutate(id, func(rec *models.WorkOrderRecord) {
		rec.Completed = true
	})
}

// MarkInProgress sets the status marker of a work order to In Progress. It
// does not touch the tracker.
func (r *Registry) MarkInProgress(id string) (models.WorkOrderRecord, error) {
	return r.mutate(id, func(rec *models.WorkOrderRecord) {
		status := StatusInProgress
		rec.Status = &status
	})
}

func (r *Registry) mutate(id string, fn func(*models.WorkOrderRecord)) (models.WorkOrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.lookup(id)
	if err != nil {
		return models.WorkOrderRecord{}, err
	}
	fn(rec)
	return rec.Clone(), nil
}
