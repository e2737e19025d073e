package session

import (
	"fmt"
	"sort"
	"strings"
)

// Checklist maps a preparation item id to whether the student satisfied it.
type Checklist map[string]bool

// PreparationError is returned when required checklist items are missing. The
// caller may retry once the items are satisfied; no attempt is created.
type PreparationError struct {
	Missing []string
}

func (e *PreparationError) Error() string {
	return fmt.Sprintf("preparation incomplete, missing required items: %s", strings.Join(e.Missing, ", "))
}

// PreparationGate gates the first transition out of Idle: every required item
// must be satisfied before an attempt may start.
type PreparationGate struct {
	required []string
}

func NewPreparationGate(required []string) *PreparationGate {
	return &PreparationGate{required: required}
}

// ReadyToStart reports whether the checklist satisfies all required items,
// and if not, which ones are missing (sorted, for stable error messages).
func (g *PreparationGate) ReadyToStart(checklist Checklist) (bool, []string) {
	var missing []string
	for _, item := range g.required {
		if !checklist[item] {
			missing = append(missing, item)
		}
	}
	sort.Strings(missing)
	return len(missing) == 0, missing
}
