package harness

// StepEvent records the outcome of one scenario step.
type StepEvent struct {
	Index   int      `json:"index"`
	Op      string   `json:"op"`
	ID      string   `json:"id,omitempty"`
	Created *bool    `json:"created,omitempty"`
	Exists  *bool    `json:"exists,omitempty"`
	Titles  []string `json:"titles,omitempty"`
	Count   *int     `json:"count,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ChangeEvent is one change batch as seen by the scenario's subscriber.
// Records are rendered as "id=display title".
type ChangeEvent struct {
	Kind          string   `json:"kind"`
	Records       []string `json:"records"`
	Deletions     []int    `json:"deletions,omitempty"`
	Insertions    []int    `json:"insertions,omitempty"`
	Modifications []int    `json:"modifications,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Steps holds one event per executed step.
	Steps []StepEvent `json:"steps"`

	// Changes holds every batch delivered to the subscriber of All(),
	// in delivery order.
	Changes []ChangeEvent `json:"changes"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Steps:   []StepEvent{},
		Changes: []ChangeEvent{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step outcome.
func (r *Result) AddStep(ev StepEvent) {
	r.Steps = append(r.Steps, ev)
}
