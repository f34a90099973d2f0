package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/tuannvm/workorder-a2a/internal/common"
	"github.com/tuannvm/workorder-a2a/internal/config"
	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"github.com/tuannvm/workorder-a2a/internal/models"
)

func main() {
	fs := config.Flags("workorder-ctl")
	url := fs.String("url", "", "agent URL (defaults to agent.url)")
	action := fs.String("action", models.ActionList, "action to run")
	id := fs.String("id", "", "work order id or key")
	author := fs.String("author", "", "note or step author")
	note := fs.String("note", "", "note text")
	index := fs.Int("index", -1, "step index")
	status := fs.String("status", "", "step status (pending, in_progress, done)")
	transition := fs.String("transition", "", "tracker transition id or name")
	issueID := fs.String("issue-id", "", "work order to generate for")
	incident := fs.String("incident", "", "free-text incident summary to generate for")
	outcome := fs.String("desired-outcome", "", "desired outcome for generation")
	topK := fs.Int("top-k", 0, "retrieved chunks for generation")
	operatorNotes := fs.String("operator-notes", "", "operator notes for generation")
	text := fs.String("text", "", "text to ingest")
	source := fs.String("source", "", "source label for ingested text")
	ticketsFile := fs.String("tickets-file", "", "JSON file with a list of tickets to ingest")
	timeout := fs.Duration("timeout", 2*time.Minute, "request timeout")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_ = log.Init(cfg.LogLevel)

	req := models.ActionRequest{
		Action:     *action,
		ID:         *id,
		Author:     *author,
		Note:       *note,
		Status:     models.StepStatus(*status),
		Transition: *transition,
		Text:       *text,
		Source:     *source,
		GenerationRequest: models.GenerationRequest{
			IncidentSummary: *incident,
			IssueID:         *issueID,
			DesiredOutcome:  *outcome,
			TopK:            *topK,
			OperatorNotes:   *operatorNotes,
		},
	}
	if *index >= 0 {
		req.Index = index
	}
	if *ticketsFile != "" {
		raw, err := os.ReadFile(*ticketsFile)
		if err != nil {
			log.Fatalf("Failed to read tickets file: %v", err)
		}
		if err := json.Unmarshal(raw, &req.Tickets); err != nil {
			log.Fatalf("Tickets file must hold a JSON list of objects: %v", err)
		}
	}

	target := *url
	if target == "" {
		target = cfg.AgentURL
	}
	a2aClient, err := common.SetupA2AClient(cfg, target)
	if err != nil {
		log.Fatalf("%v", err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		log.Fatalf("Failed to marshal request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Debugf("Sending %s to %s", req.Action, target)
	msg, sendErr := common.SendTask(ctx, a2aClient, protocol.SendTaskParams{
		Message: protocol.Message{
			Parts: []protocol.Part{protocol.NewTextPart(string(payload))},
		},
	})

	printed := false
	for _, part := range msg.Parts {
		if tp, ok := part.(*protocol.TextPart); ok && tp != nil {
			fmt.Println(tp.Text)
			printed = true
			break
		}
		if tp, ok := part.(protocol.TextPart); ok {
			fmt.Println(tp.Text)
			printed = true
			break
		}
	}
	if !printed && len(msg.Parts) > 0 {
		out, _ := json.MarshalIndent(msg.Parts, "", "  ")
		fmt.Println(string(out))
	}
	if sendErr != nil {
		log.Errorf("%v", sendErr)
		os.Exit(1)
	}
}
