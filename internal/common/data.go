package common

import (
	"encoding/json"
	"fmt"

	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"github.com/tuannvm/workorder-a2a/internal/models"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"
)

// ExtractActionRequest extracts an action request from a message. DataParts are
// tried before TextParts; the first part that decodes with an action wins.
func ExtractActionRequest(message protocol.Message, req *models.ActionRequest) error {
	if len(message.Parts) == 0 {
		return fmt.Errorf("%w: message has no parts", models.ErrValidation)
	}

	for _, part := range message.Parts {
		var dp *protocol.DataPart
		switch v := part.(type) {
		case protocol.DataPart:
			dp = &v
		case *protocol.DataPart:
			dp = v
		}
		if dp == nil || dp.Data == nil {
			continue
		}
		raw, err := json.Marshal(dp.Data)
		if err != nil {
			log.Warnf("Failed to marshal DataPart.Data: %v", err)
			continue
		}
		if decodeAction(raw, req) {
			return nil
		}
	}

	for _, part := range message.Parts {
		var text string
		switch v := part.(type) {
		case protocol.TextPart:
			text = v.Text
		case *protocol.TextPart:
			if v != nil {
				text = v.Text
			}
		}
		if text != "" && decodeAction([]byte(text), req) {
			return nil
		}
	}

	return fmt.Errorf("%w: could not extract an action request from message", models.ErrValidation)
}

func decodeAction(raw []byte, req *models.ActionRequest) bool {
	var candidate models.ActionRequest
	if err := json.Unmarshal(raw, &candidate); err != nil || candidate.Action == "" {
		return false
	}
	*req = candidate
	return true
}

// ResultMessage wraps a result value into a message carrying a DataPart and a
// TextPart with the same JSON, so clients of either kind can read it.
func ResultMessage(result interface{}) (*protocol.Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to re-decode result: %w", err)
	}
	dataPart := protocol.DataPart{
		Type: "data",
		Data: data,
		Metadata: map[string]interface{}{
			"content-type": "application/json",
		},
	}
	return &protocol.Message{
		Parts: []protocol.Part{&dataPart, protocol.NewTextPart(string(raw))},
	}, nil
}
