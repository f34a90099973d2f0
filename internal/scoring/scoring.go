package scoring

import (
	"math"
	"strings"

	"github.com/tuannvm/workorder-a2a/internal/models"
)

// MissingFields lists the required fields the ticket leaves absent or blank,
// in the order the tables declare them.
func (t *Tables) MissingFields(ticket models.Ticket) []string {
	missing := []string{}
	for _, field := range t.RequiredFields {
		if strings.TrimSpace(fieldValue(ticket, field)) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Score ranks a ticket: priority weight plus keyword bonuses minus a penalty
// per missing field, rounded to three decimals and clamped at zero.
func (t *Tables) Score(ticket models.Ticket, missing []string) float64 {
	label := strings.ToLower(strings.TrimSpace(models.Deref(ticket.Priority)))
	if label == "" {
		label = t.FallbackPriority
	}
	base, ok := t.PriorityWeights[label]
	if !ok {
		base = t.DefaultWeight
	}

	text := strings.ToLower(ticket.Summary + " " + models.Deref(ticket.Description))
	var bonus float64
	for _, kw := range t.Keywords {
		if strings.Contains(text, kw.Keyword) {
			bonus += kw.Weight
		}
	}

	score := base + bonus - t.MissingPenalty*float64(len(missing))
	return math.Max(0, math.Round(score*1000)/1000)
}

// Evaluate computes missing fields and score in one pass
func (t *Tables) Evaluate(ticket models.Ticket) (float64, []string) {
	missing := t.MissingFields(ticket)
	return t.Score(ticket, missing), missing
}

func fieldValue(ticket models.Ticket, field string) string {
	switch field {
	case "key":
		return ticket.Key
	case "summary":
		return ticket.Summary
	case "description":
		return models.Deref(ticket.Description)
	case "priority":
		return models.Deref(ticket.Priority)
	case "status":
		return models.Deref(ticket.Status)
	case "assignee":
		return models.Deref(ticket.Assignee)
	case "updated":
		if ticket.Updated != nil {
			return ticket.Updated.String()
		}
	}
	return ""
}
