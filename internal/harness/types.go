package harness

// Match is one result row of a scenario search, resolved to names.
type Match struct {
	Rank       int64  `json:"rank"`
	Transcript string `json:"transcript"`
	Speaker    string `json:"speaker,omitempty"`
	FirstWord  string `json:"first_word,omitempty"`
	LastWord   string `json:"last_word,omitempty"`
	// ID is the encoded match identifier.
	ID string `json:"id"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the search ended as expected and all assertions hold.
	Pass bool `json:"pass"`

	// State is the final state of the search.
	State string `json:"state"`

	// Strategy is the strategy the search compiled to. Empty when
	// compilation failed.
	Strategy string `json:"strategy,omitempty"`

	// Matches holds the surviving rows in rank order.
	Matches []Match `json:"matches"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Matches: []Match{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
