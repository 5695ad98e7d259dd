package lisp

// DefaultMaxSteps is the default step quota for one evaluation pass.
// It stops runaway recursion that stays under the depth limit.
const DefaultMaxSteps = 100000

// DefaultMaxDepth is the default nesting limit for one evaluation pass.
const DefaultMaxDepth = 256

// quota counts evaluation steps within one pass.
//
// The depth limit bounds the Go stack; the step quota bounds time. Together
// they guarantee every pass returns to the caller.
type quota struct {
	maxSteps int
	current  int
}

func newQuota(maxSteps int) *quota {
	return &quota{maxSteps: maxSteps}
}

// step increments the counter and reports an error once the limit is passed.
func (q *quota) step() error {
	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return newError(ErrCodeStepsExceeded, "evaluation exceeded %d steps", q.maxSteps)
	}
	return nil
}

// reset starts a new pass.
func (q *quota) reset() {
	q.current = 0
}
