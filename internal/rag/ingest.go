package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/tuannvm/workorder-a2a/internal/index"
	"github.com/tuannvm/workorder-a2a/internal/jira"
	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"github.com/tuannvm/workorder-a2a/internal/models"
)

// TicketSource supplies raw ticket payloads for ingestion
type TicketSource interface {
	Search(ctx context.Context, jql string) ([]map[string]interface{}, error)
}

// Upserter writes documents to the retrieval index
type Upserter interface {
	Upsert(ctx context.Context, docs []index.Document) (int, error)
}

// IngestResult reports what an ingestion wrote
type IngestResult struct {
	IngestedDocuments int `json:"ingested_documents"`
	TicketsIndexed    int `json:"tickets_indexed"`
}

// Ingester loads tickets and operator text into the retrieval index
type Ingester struct {
	source TicketSource
	index  Upserter
}

// NewIngester creates an ingester
func NewIngester(source TicketSource, idx Upserter) *Ingester {
	return &Ingester{source: source, index: idx}
}

// IngestTracker indexes every ticket returned by the tracker's default query
func (i *Ingester) IngestTracker(ctx context.Context) (*IngestResult, error) {
	raws, err := i.source.Search(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("ingest tracker: %w", err)
	}
	return i.IngestManual(ctx, raws)
}

// IngestManual indexes raw ticket payloads supplied by the caller
func (i *Ingester) IngestManual(ctx context.Context, raws []map[string]interface{}) (*IngestResult, error) {
	tickets := make([]models.Ticket, 0, len(raws))
	for _, raw := range raws {
		t := jira.Normalize(raw)
		if t.Key == "" {
			log.Warnf("Skipping ticket without a key during ingestion")
			continue
		}
		tickets = append(tickets, t)
	}
	return i.IngestTickets(ctx, tickets)
}

// IngestTickets indexes normalized tickets
func (i *Ingester) IngestTickets(ctx context.Context, tickets []models.Ticket) (*IngestResult, error) {
	docs := make([]index.Document, 0, len(tickets))
	for _, t := range tickets {
		docs = append(docs, TicketDocument(t))
	}
	n, err := i.index.Upsert(ctx, docs)
	if err != nil {
		return nil, err
	}
	log.Infof("Indexed %d tickets as %d chunks", len(docs), n)
	return &IngestResult{IngestedDocuments: n, TicketsIndexed: len(docs)}, nil
}

// IngestText indexes free text such as an equipment guide or operator
// instructions under the given source name.
func (i *Ingester) IngestText(ctx context.Context, text, source string) (*IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", models.ErrValidation)
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "manual-text"
	}
	doc := index.Document{
		ID:   "text:" + source,
		Text: text,
		Metadata: map[string]string{
			index.MetaSource: source,
			index.MetaKind:   "text",
		},
	}
	n, err := i.index.Upsert(ctx, []index.Document{doc})
	if err != nil {
		return nil, err
	}
	return &IngestResult{IngestedDocuments: n}, nil
}

// TicketDocument renders a ticket as an index document keyed by ticket key
func TicketDocument(t models.Ticket) index.Document {
	meta := map[string]string{
		index.MetaSource:  t.Key,
		index.MetaSummary: t.Summary,
		index.MetaKind:    "ticket",
	}
	if p := models.Deref(t.Priority); p != "" {
		meta["priority"] = p
	}
	if s := models.Deref(t.Status); s != "" {
		meta["status"] = s
	}
	return index.Document{
		ID:       "ticket:" + t.Key,
		Text:     t.ToText(),
		Metadata: meta,
	}
}
