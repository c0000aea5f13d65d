package provision

import (
	"aectl/internal/logger"
)

// policy says what a step failure does to the enclosing workflow.
type policy int

const (
	// fatal aborts the workflow with the step's error.
	fatal policy = iota
	// bestEffort logs the failure and continues. Used for operations
	// that are expected to fail on a clean machine (nothing to clean up,
	// nothing to unmount) where failure is as harmless as success.
	bestEffort
)

// step is one named unit of work with an explicit failure policy. Making
// the policy part of the step keeps the tolerance rules visible in the
// step lists instead of buried in scattered error handling.
type step struct {
	name   string
	policy policy
	fn     func() error
}

// runSteps executes steps in order. A bestEffort failure is logged and
// skipped; a fatal failure stops the sequence and is returned.
func runSteps(steps []step) error {
	for _, s := range steps {
		logger.Debug("[DEBUG] Step: %s\n", s.name)
		if err := s.fn(); err != nil {
			if s.policy == bestEffort {
				logger.Warn("[WARN] %s failed (continuing): %v\n", s.name, err)
				continue
			}
			return err
		}
	}
	return nil
}

// relaxed returns a copy of steps with every policy downgraded to
// bestEffort. The `other` profile provisions unknown machines this way:
// any individual step may fail there without invalidating the rest.
func relaxed(steps []step) []step {
	out := make([]step, len(steps))
	for i, s := range steps {
		s.policy = bestEffort
		out[i] = s
	}
	return out
}
