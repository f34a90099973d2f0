package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Ticket is a normalized incident record sourced from the issue tracker.
// Nil pointers mark fields that were absent upstream.
type Ticket struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	Summary     string     `json:"summary"`
	Description *string    `json:"description,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	Updated     *time.Time `json:"updated,omitempty"`
}

// ToText renders the ticket as the document text indexed for retrieval
func (t Ticket) ToText() string {
	parts := []string{
		"Ticket: " + t.Key,
		"Summary: " + t.Summary,
	}
	if s := Deref(t.Status); s != "" {
		parts = append(parts, "Status: "+s)
	}
	if p := Deref(t.Priority); p != "" {
		parts = append(parts, "Priority: "+p)
	}
	if a := Deref(t.Assignee); a != "" {
		parts = append(parts, "Assignee: "+a)
	}
	if t.Updated != nil {
		parts = append(parts, "Updated: "+t.Updated.Format(time.RFC3339))
	}
	if d := Deref(t.Description); d != "" {
		parts = append(parts, "Description: "+d)
	}
	return strings.Join(parts, "\n")
}

// StepStatus is the progress marker of a single remediation step
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepDone       StepStatus = "done"
)

// Valid reports whether s is one of the known step statuses
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepInProgress, StepDone:
		return true
	}
	return false
}

// Step is one remediation step of a work order
type Step struct {
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

// Note is a technician note appended to a work order
type Note struct {
	Author    string    `json:"author"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkOrderRecord is the rankable, mutable unit of technician work derived from a ticket
type WorkOrderRecord struct {
	Key           string     `json:"key"`
	JiraID        string     `json:"jira_id,omitempty"`
	Summary       string     `json:"summary"`
	Description   *string    `json:"description"`
	Priority      *string    `json:"priority"`
	Status        *string    `json:"status"`
	Assignee      *string    `json:"assignee"`
	Updated       *time.Time `json:"updated"`
	MissingFields []string   `json:"missing_fields"`
	Score         float64    `json:"score"`
	Steps         []Step     `json:"steps"`
	Notes         []Note     `json:"notes"`
	Completed     bool       `json:"completed"`
}

// ContextText composes the record into the incident text handed to generation
func (r *WorkOrderRecord) ContextText() string {
	blocks := []string{
		"Ticket: " + r.Key,
		"Summary: " + r.Summary,
		"Priority: " + Deref(r.Priority),
		"Status: " + Deref(r.Status),
	}
	if a := Deref(r.Assignee); a != "" {
		blocks = append(blocks, "Assignee: "+a)
	}
	if d := Deref(r.Description); d != "" {
		blocks = append(blocks, "Description: "+d)
	}
	return strings.Join(blocks, "\n")
}

// Clone returns a deep copy that shares no slices with r
func (r *WorkOrderRecord) Clone() WorkOrderRecord {
	c := *r
	c.MissingFields = append([]string(nil), r.MissingFields...)
	c.Steps = append([]Step(nil), r.Steps...)
	c.Notes = append([]Note(nil), r.Notes...)
	return c
}

// WorkOrder is the structured output of generation. When the model's answer
// could not be parsed, only RawText is set and the JSON form is {"raw_text": ...}.
type WorkOrder struct {
	Title      string   `json:"title"`
	Impact     string   `json:"impact"`
	Steps      []string `json:"steps"`
	Materials  []string `json:"materials"`
	Validation []string `json:"validation"`
	JiraRefs   []string `json:"jira_refs"`
	RawText    string   `json:"-"`
}

// Structured reports whether the work order carries the parsed shape
func (w *WorkOrder) Structured() bool {
	return w.RawText == ""
}

// MarshalJSON emits either the structured shape or the raw_text wrapper
func (w WorkOrder) MarshalJSON() ([]byte, error) {
	if !w.Structured() {
		return json.Marshal(map[string]string{"raw_text": w.RawText})
	}
	type plain WorkOrder
	p := plain(w)
	for _, s := range []*[]string{&p.Steps, &p.Materials, &p.Validation, &p.JiraRefs} {
		if *s == nil {
			*s = []string{}
		}
	}
	return json.Marshal(p)
}

// UnmarshalJSON accepts both shapes emitted by MarshalJSON
func (w *WorkOrder) UnmarshalJSON(data []byte) error {
	var probe struct {
		RawText *string `json:"raw_text"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.RawText != nil {
		*w = WorkOrder{RawText: *probe.RawText}
		return nil
	}
	type plain WorkOrder
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*w = WorkOrder(p)
	return nil
}

// Source is a provenance entry for a retrieved chunk
type Source struct {
	SourceID string `json:"source_id"`
	Summary  string `json:"summary"`
}

// GenerationStatus is the terminal state of one generation request
type GenerationStatus string

const (
	GenerationGenerated GenerationStatus = "generated"
	GenerationFallback  GenerationStatus = "fallback"
	GenerationRefused   GenerationStatus = "refused"
)

// GenerationRequest is the input of the generation pipeline
type GenerationRequest struct {
	IncidentSummary string `json:"incident_summary,omitempty"`
	IssueID         string `json:"issue_id,omitempty"`
	IssueKey        string `json:"issue_key,omitempty"` // legacy lookup key
	DesiredOutcome  string `json:"desired_outcome,omitempty"`
	TopK            int    `json:"top_k,omitempty"`
	OperatorNotes   string `json:"operator_notes,omitempty"`
}

// LookupKey returns the key used to resolve a work order record, if any
func (r GenerationRequest) LookupKey() string {
	if r.IssueID != "" {
		return r.IssueID
	}
	return r.IssueKey
}

// GenerationResult is the outcome of the generation pipeline. A generated or
// fallback result always carries a WorkOrder; Warning is set on fallback.
type GenerationResult struct {
	Status        GenerationStatus `json:"status"`
	WorkOrder     *WorkOrder       `json:"work_order"`
	Plan          *string          `json:"plan"`
	Sources       []Source         `json:"sources"`
	IssueID       string           `json:"issue_id,omitempty"`
	MissingFields []string         `json:"missing_fields,omitempty"`
	Message       string           `json:"message,omitempty"`
	Warning       string           `json:"warning,omitempty"`
}

// TransitionResult reports a workflow transition applied by the tracker
type TransitionResult struct {
	OK           bool   `json:"ok"`
	TransitionID string `json:"moved_to_id,omitempty"`
	MovedTo      string `json:"moved_to,omitempty"`
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or ""
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Action names accepted by the work order agent
const (
	ActionRefresh         = "refresh"
	ActionList            = "list"
	ActionGet             = "get"
	ActionHighestPriority = "highest_priority"
	ActionNote            = "note"
	ActionStep            = "step"
	ActionComplete        = "complete"
	ActionStart           = "start"
	ActionTransition      = "transition"
	ActionGenerate        = "generate"
	ActionIngestJira      = "ingest_jira"
	ActionIngestManual    = "ingest_manual"
	ActionIngestText      = "ingest_text"
)

// ActionRequest is the payload sent to the work order agent. Generation
// fields are inlined so a generate request reads as a flat object.
type ActionRequest struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`

	Author string     `json:"author,omitempty"`
	Note   string     `json:"note,omitempty"`
	Index  *int       `json:"index,omitempty"`
	Status StepStatus `json:"status,omitempty"`

	// Transition is a numeric transition id or a transition name
	Transition string `json:"transition,omitempty"`

	GenerationRequest

	Tickets []map[string]interface{} `json:"tickets,omitempty"`
	Text    string                   `json:"text,omitempty"`
	Source  string                   `json:"source,omitempty"`
}
