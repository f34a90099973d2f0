package baseline

import (
	"reflect"
	"testing"
)

func TestSelectSteps(t *testing.T) {
	tests := []struct {
		name        string
		summary     string
		description string
		priority    string
		want        string
	}{
		{"thermal keyword", "GPU rack A12 thermal drift", "92C on boards", "High", FamilyThermal},
		{"power keyword", "PDU alarm row 4", "", "Medium", FamilyPower},
		{"network keyword", "Packet loss on spine", "", "", FamilyNetwork},
		{"no signal", "Door badge reader offline", "", "", FamilyDefault},
		{"priority tier wins", "GPU overheating", "", "P4", FamilyPower},
		{"tier two", "GPU overheating", "", "p2", FamilyNetwork},
		{"tier one", "switch flapping", "", " 1 ", FamilyDefault},
		{"thermal before power", "fan and power fault", "", "", FamilyThermal},
		{"description only", "rack alert", "voltage sag detected", "", FamilyPower},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Family(tt.summary, tt.description, tt.priority); got != tt.want {
				t.Errorf("Family() = %q, want %q", got, tt.want)
			}
			steps := SelectSteps(tt.summary, tt.description, tt.priority)
			if !reflect.DeepEqual(steps, templates[tt.want]) {
				t.Errorf("SelectSteps() = %v", steps)
			}
		})
	}
}

func TestSelectSteps_ReturnsCopy(t *testing.T) {
	steps := SelectSteps("GPU hot", "", "")
	steps[0] = "mutated"

	again := SelectSteps("GPU hot", "", "")
	if again[0] == "mutated" {
		t.Fatal("SelectSteps must not expose the shared template")
	}
}

func TestDefaultSteps(t *testing.T) {
	steps := DefaultSteps()
	if len(steps) != 4 || steps[0] != "Inspect sensor telemetry and confirm alert thresholds." {
		t.Errorf("DefaultSteps() = %v", steps)
	}
	if got := Steps("unknown"); !reflect.DeepEqual(got, steps) {
		t.Errorf("Steps(unknown) = %v", got)
	}
}
