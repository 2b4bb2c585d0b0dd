package harness

// DecisionTrace is one resolved decision as recorded by a run.
type DecisionTrace struct {
	Batch      int      `json:"batch"`
	ObjectID   string   `json:"object_id"`
	ObjectType string   `json:"object_type"`
	Status     string   `json:"status"`
	Side       string   `json:"side"`
	Mockify    bool     `json:"mockify"`
	Grants     []string `json:"grants"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion holds.
	Pass bool `json:"pass"`

	// Decisions holds the low side's decisions in resolution order.
	Decisions []DecisionTrace `json:"decisions"`

	// Skipped counts batches where every diff was SAME.
	Skipped int `json:"skipped_batches"`

	// ResolveError is set when resolution stopped with an error the
	// scenario expected.
	ResolveError string `json:"error,omitempty"`

	// Grants maps object id to the grants the store holds after applying
	// the low side, as "PERMISSION:identity".
	Grants map[string][]string `json:"grants,omitempty"`

	// Output is the progress text Resolve printed.
	Output string `json:"-"`

	Errors []string `json:"errors,omitempty"`
}

func NewResult() *Result {
	return &Result{
		Pass:      true,
		Decisions: []DecisionTrace{},
		Grants:    make(map[string][]string),
		Errors:    []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) decision(objectID string) (DecisionTrace, bool) {
	for _, d := range r.Decisions {
		if d.ObjectID == objectID {
			return d, true
		}
	}
	return DecisionTrace{}, false
}
