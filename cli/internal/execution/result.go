package execution

// ResultKind separates results the service produced from failures to get
// one at all. An infrastructure failure is never a verdict on the code.
type ResultKind string

const (
	KindCompleted             ResultKind = "completed"
	KindInfrastructureFailure ResultKind = "infrastructure-failure"
)

// VectorResult is the outcome of one test vector.
type VectorResult struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Stderr   string `json:"stderr,omitempty"`
}

// RunResult reports every vector of a run.
type RunResult struct {
	Kind    ResultKind     `json:"kind"`
	Vectors []VectorResult `json:"vectors,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Passed reports whether the run completed with every vector passing.
func (r RunResult) Passed() bool {
	if r.Kind != KindCompleted {
		return false
	}
	for _, v := range r.Vectors {
		if !v.Passed {
			return false
		}
	}
	return true
}

// Failing returns the vectors that did not pass.
func (r RunResult) Failing() []VectorResult {
	var out []VectorResult
	for _, v := range r.Vectors {
		if !v.Passed {
			out = append(out, v)
		}
	}
	return out
}

type Verdict string

const (
	VerdictAccepted          Verdict = "accepted"
	VerdictWrongAnswer       Verdict = "wrong-answer"
	VerdictTimeLimitExceeded Verdict = "time-limit-exceeded"
	VerdictRuntimeError      Verdict = "runtime-error"
	VerdictCompileError      Verdict = "compile-error"
)

// SubmissionResult is a single verdict, with the first failing vector when
// there is one.
type SubmissionResult struct {
	Kind          ResultKind    `json:"kind"`
	Verdict       Verdict       `json:"verdict,omitempty"`
	FailingVector *VectorResult `json:"failingVector,omitempty"`
	Error         string        `json:"error,omitempty"`
}

func (r SubmissionResult) Accepted() bool {
	return r.Kind == KindCompleted && r.Verdict == VerdictAccepted
}
