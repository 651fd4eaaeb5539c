package tasks

import "fmt"

// ProgressUpdate represents a progress event during a sync cycle.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Cycle phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Phase enumerates the orchestrator's cycle states.
type Phase int

const (
	Fetching Phase = iota
	Diffing
	Classifying
	AwaitingResolution
	Applying
	Committing
	Done
	Aborted
)

func (p Phase) String() string {
	switch p {
	case Fetching:
		return "fetching"
	case Diffing:
		return "diffing"
	case Classifying:
		return "classifying"
	case AwaitingResolution:
		return "awaiting_resolution"
	case Applying:
		return "applying"
	case Committing:
		return "committing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	default:
		return ""
	}
}

func fetchingUpdate(platform string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Fetching,
		Step:    1,
		Total:   2,
		Message: fmt.Sprintf("Fetching library from %s...", platform),
	}
}

func diffingUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Diffing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Diffing %s...", step, total, name),
	}
}

func classifyingUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Classifying,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Classifying %s...", step, total, name),
	}
}

func conflictUpdate(step, total int, name, field string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AwaitingResolution,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Conflict on %s (%s) parked for resolution", name, field),
	}
}

func applyingUpdate(step, total int, name string, target string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Applying,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Applying %s to %s...", step, total, name, target),
	}
}

func applyFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Applying,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

func committingUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Committing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Committing %s...", step, total, name),
	}
}

func doneUpdate(applied, conflicts int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Sync complete: %d applied, %d conflicts", applied, conflicts),
	}
}
