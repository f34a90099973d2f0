package common

import (
	"context"
	"fmt"

	"github.com/tuannvm/workorder-a2a/internal/config"
	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"trpc.group/trpc-go/trpc-a2a-go/client"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"
)

// SetupA2AClient creates and configures an A2A client with appropriate authentication
func SetupA2AClient(cfg *config.Config, targetURL string) (*client.A2AClient, error) {
	var a2aClient *client.A2AClient
	var err error

	switch cfg.AuthType {
	case "apikey":
		log.Debugf("Using API key authentication for A2A client (API key length: %d)", len(cfg.APIKey))
		a2aClient, err = client.NewA2AClient(targetURL, client.WithAPIKeyAuth(cfg.APIKey, "X-API-Key"))
	default:
		if cfg.AuthType != "" && cfg.AuthType != "jwt" {
			log.Warnf("Unknown auth type %q, connecting without authentication", cfg.AuthType)
		}
		a2aClient, err = client.NewA2AClient(targetURL)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create A2A client: %w", err)
	}

	return a2aClient, nil
}

// SendTask synchronously sends a task via JSON-RPC and returns the consolidated
// Message built from the status message and every artifact part.
func SendTask(ctx context.Context, a2aClient *client.A2AClient, params protocol.SendTaskParams) (protocol.Message, error) {
	task, err := a2aClient.SendTasks(ctx, params)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("SendTasks RPC failed: %w", err)
	}
	var parts []protocol.Part
	if task.Status.Message != nil {
		parts = append(parts, task.Status.Message.Parts...)
	}
	for _, art := range task.Artifacts {
		parts = append(parts, art.Parts...)
	}
	if task.Status.State == protocol.TaskState("failed") {
		return protocol.Message{Parts: parts}, fmt.Errorf("task %s failed", task.ID)
	}
	return protocol.Message{Parts: parts}, nil
}
