package planning

import (
	"fmt"
	"sort"
)

// Ready reports whether every required step has reached a terminal status.
// A failed step counts as ready: it has reported back with an empty result and
// must not block synthesis.
func Ready(s *State, required ...StepName) bool {
	for _, name := range required {
		if !s.Status(name).Terminal() {
			return false
		}
	}
	return true
}

// HasErrors reports whether any step recorded error detail.
func HasErrors(s *State) bool {
	for _, e := range s.StepErrors {
		if e != "" {
			return true
		}
	}
	return false
}

// Summary renders status counts and the error flag for logs.
func Summary(s *State) string {
	counts := map[Status]int{}
	names := make([]string, 0, len(s.StepStatus))
	for name, st := range s.StepStatus {
		switch st {
		case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
			counts[st]++
		default:
			counts[StatusPending]++
		}
		names = append(names, string(name))
	}
	sort.Strings(names)
	flag := "No"
	if HasErrors(s) {
		flag = "Yes"
	}
	return fmt.Sprintf("Steps - pending: %d, in_progress: %d, completed: %d, failed: %d; Errors: %s; Seen: %v",
		counts[StatusPending], counts[StatusInProgress], counts[StatusCompleted], counts[StatusFailed], flag, names)
}
