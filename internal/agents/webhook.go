package agents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tuannvm/workorder-a2a/internal/common"
	"github.com/tuannvm/workorder-a2a/internal/events"
	"github.com/tuannvm/workorder-a2a/internal/jira"
	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"github.com/tuannvm/workorder-a2a/internal/models"
	"trpc.group/trpc-go/trpc-a2a-go/auth"
)

// maxWebhookBody bounds the size of an accepted webhook payload
const maxWebhookBody = 1 << 20

// WebhookResponse is returned for every accepted webhook
type WebhookResponse struct {
	Status    string `json:"status"`
	TicketID  string `json:"ticketId"`
	Event     string `json:"event"`
	Indexed   bool   `json:"indexed"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// WebhookHandler returns the HTTP handler serving /webhook and /healthz
func (a *WorkOrderAgent) WebhookHandler(provider auth.Provider) http.Handler {
	if provider == nil {
		log.Warnf("No authentication provider available, webhook endpoint will be unsecured")
	}
	router := http.NewServeMux()
	router.Handle("/webhook", common.AuthMiddleware(provider, http.HandlerFunc(a.HandleWebhook)))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		common.ReturnJSON(w, http.StatusOK, map[string]interface{}{
			"status":          "ok",
			"registry_loaded": a.registry.Loaded(),
		})
	})
	return router
}

// StartWebhookServer serves the webhook handler on addr until ctx is done
func (a *WorkOrderAgent) StartWebhookServer(ctx context.Context, addr string, provider auth.Provider) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.WebhookHandler(provider),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Webhook endpoint available at: http://%s/webhook", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// HandleWebhook indexes Jira issue created/updated events so retrieval sees
// fresh ticket history without a registry refresh.
func (a *WorkOrderAgent) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := fmt.Sprintf("req-%d", time.Now().UnixNano())
	log.Debugf("[%s] Received webhook request from %s", requestID, r.RemoteAddr)

	if r.Method != http.MethodPost {
		common.ReturnJSONError(w, http.StatusMethodNotAllowed, "Method not allowed: Only POST requests are accepted")
		return
	}
	if ct := r.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		common.ReturnJSONError(w, http.StatusUnsupportedMediaType, "Content type must be application/json")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	defer r.Body.Close()
	if err != nil {
		common.ReturnJSONError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}
	if len(body) == 0 {
		common.ReturnJSONError(w, http.StatusBadRequest, "Request body cannot be empty")
		return
	}

	event, err := jira.TransformJiraWebhook(body)
	if err != nil {
		log.Warnf("[%s] Rejected webhook: %v", requestID, err)
		common.ReturnJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := WebhookResponse{
		Status:    "success",
		TicketID:  event.TicketID,
		Event:     event.Event,
		RequestID: requestID,
		Message:   fmt.Sprintf("Ignored %s event for ticket %s", event.Event, event.TicketID),
	}

	if event.Indexable() {
		res, err := a.ingester.IngestTickets(r.Context(), []models.Ticket{event.Ticket})
		if err != nil {
			log.Errorf("[%s] Failed to index ticket %s: %v", requestID, event.TicketID, err)
			status := http.StatusBadGateway
			if errors.Is(err, models.ErrDependencyUnavailable) {
				status = http.StatusServiceUnavailable
			}
			common.ReturnJSONError(w, status, fmt.Sprintf("Failed to index ticket: %v", err))
			return
		}
		resp.Indexed = true
		resp.Message = fmt.Sprintf("Indexed ticket %s as %d chunk(s)", event.TicketID, res.IngestedDocuments)
		a.publish(r.Context(), events.Event{Type: events.TypeIngested, Key: event.TicketID, Actor: event.UserName, Data: map[string]interface{}{
			"source":             "webhook",
			"event":              event.Event,
			"ingested_documents": res.IngestedDocuments,
		}})
	}

	common.ReturnJSON(w, http.StatusOK, resp)
	log.Infof("[%s] Webhook for %s (%s) processed in %v", requestID, event.TicketID, event.Event, time.Since(start))
}
