package workflow

// BaseState implements the State interface for embedding in concrete
// workflow states. Errors accumulate as strings so they can be joined
// into a persisted error log and returned to callers in result objects.
type BaseState struct {
	CurrentStep string
	Errors      []string
}

// Advance records the step about to execute.
func (b *BaseState) Advance(step string) {
	b.CurrentStep = step
}

// RecordError appends a step failure to the error log.
func (b *BaseState) RecordError(err error) {
	if err == nil {
		return
	}
	b.Errors = append(b.Errors, err.Error())
}

// HasErrors reports whether any step failed during the run.
func (b *BaseState) HasErrors() bool {
	return len(b.Errors) > 0
}
