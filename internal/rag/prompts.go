package rag

import (
	"strings"

	"github.com/tuannvm/workorder-a2a/internal/llm"
)

const (
	planSystemPrompt     = "Keep the plan concise and actionable."
	generateSystemPrompt = "Output valid JSON and stay concise."

	contextSeparator = "\n---\n"
)

// Fixed content of baseline work orders
const (
	FallbackImpact = "Operational incident requiring technician attention."
	FallbackPlan   = "Baseline plan generated due to upstream model error."
	RefusedMessage = "Jira ticket missing required data. Please complete the fields before generating a work order."
)

// FallbackValidation lists the validation criteria of a baseline work order
var FallbackValidation = []string{
	"Temperatures stabilized within acceptable range",
	"Service resumes without throttling",
}

func composeQuestion(incident, desiredOutcome string) string {
	question := "Create a work order for: " + incident
	if desiredOutcome != "" {
		question += "\nDesired outcome: " + desiredOutcome
	}
	return question
}

func planMessages(s *GenerationState) []llm.Message {
	var b strings.Builder
	b.WriteString("You are planning mitigations for a data center incident.\n")
	b.WriteString("Generate a numbered list (max 4 steps) referencing historical work orders.\n")
	b.WriteString("Incident: " + s.Incident + "\n")
	if s.DesiredOutcome != "" {
		b.WriteString("Desired outcome: " + s.DesiredOutcome + "\n")
	}
	if s.OperatorNotes != "" {
		b.WriteString("Operator notes: " + s.OperatorNotes + "\n")
	}
	if s.Context != "" {
		b.WriteString("Retrieved context:\n" + s.Context + "\n")
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: planSystemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

func generateMessages(s *GenerationState) []llm.Message {
	var b strings.Builder
	b.WriteString("You are transforming Jira issues into executable work orders.\n")
	b.WriteString("Return the final work order in JSON with the shape:\n")
	b.WriteString(`{"title": "...", "impact": "...", "steps": ["..."], "materials": ["..."], `)
	b.WriteString(`"validation": ["..."], "jira_refs": ["DWOS-123"]}` + "\n")
	b.WriteString("Incident:\n" + s.Incident + "\n\n")
	b.WriteString("Context summary:\n" + s.Context + "\n\n")
	b.WriteString("Technician action plan:\n" + s.Plan + "\n")
	return []llm.Message{
		{Role: llm.RoleSystem, Content: generateSystemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}
