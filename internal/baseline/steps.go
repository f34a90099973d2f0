// Package baseline holds the deterministic remediation templates used to seed
// work orders and to stand in when model generation is unavailable.
package baseline

import (
	"strings"
	"unicode"
)

// Template families
const (
	FamilyThermal = "thermal"
	FamilyPower   = "power"
	FamilyNetwork = "network"
	FamilyDefault = "default"
)

var templates = map[string][]string{
	FamilyThermal: {
		"Verify intake/exhaust temperatures and compare to baseline telemetry.",
		"Inspect liquid/air cooling loops for flow obstructions or leaks.",
		"Throttle workload or migrate sessions to reduce thermal load.",
		"Document readings and escalate if temperatures remain out-of-band.",
	},
	FamilyPower: {
		"Check rack and PDU current draw against safe operating limits.",
		"Confirm redundant feeds and breakers are stable with no alarms.",
		"Inspect cabling for heat or contact issues; reseat if necessary.",
		"Coordinate with facilities before cycling affected power domains.",
	},
	FamilyNetwork: {
		"Validate link status and error counters on top-of-rack switches.",
		"Capture recent packet loss/latency metrics from the fabric controller.",
		"Inspect optics and cables for seating or damage, replace if needed.",
		"Escalate to network ops if congestion persists after mitigation.",
	},
	FamilyDefault: {
		"Inspect sensor telemetry and confirm alert thresholds.",
		"Power cycle the affected server or sled if safe to do so.",
		"Verify airflow paths and clear obstructions.",
		"Validate coolant/air loop pressures before ramping load.",
	},
}

// priorityTiers maps a priority tier to a family. Tiers are the digits of the
// label ("P2" -> "2") or the label itself.
var priorityTiers = map[string]string{
	"1": FamilyDefault,
	"2": FamilyNetwork,
	"3": FamilyNetwork,
	"4": FamilyPower,
}

// keywordFamilies is checked in order; the first family with a hit wins
var keywordFamilies = []struct {
	family   string
	keywords []string
}{
	{FamilyThermal, []string{"heat", "therm", "cool", "fan", "gpu"}},
	{FamilyPower, []string{"power", "pdu", "voltage", "current"}},
	{FamilyNetwork, []string{"network", "packet", "switch", "fabric"}},
}

// DefaultSteps returns a fresh copy of the default family template
func DefaultSteps() []string {
	return Steps(FamilyDefault)
}

// Steps returns a fresh copy of the named family template, or the default
// template for unknown names.
func Steps(family string) []string {
	tpl, ok := templates[family]
	if !ok {
		tpl = templates[FamilyDefault]
	}
	return append([]string(nil), tpl...)
}

// Family picks the template family for a ticket. A recognised priority tier
// wins, then the first keyword family matched in summary and description,
// then the default family.
func Family(summary, description, priority string) string {
	if family, ok := priorityTiers[tier(priority)]; ok {
		return family
	}

	text := strings.ToLower(summary + " " + description)
	for _, kf := range keywordFamilies {
		for _, kw := range kf.keywords {
			if strings.Contains(text, kw) {
				return kf.family
			}
		}
	}
	return FamilyDefault
}

// SelectSteps returns the baseline steps for a ticket. The result is always
// non-empty and owned by the caller.
func SelectSteps(summary, description, priority string) []string {
	return Steps(Family(summary, description, priority))
}

func tier(priority string) string {
	label := strings.ToLower(strings.TrimSpace(priority))
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, label)
	if digits != "" {
		return digits
	}
	return label
}
