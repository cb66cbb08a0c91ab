package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock supplies run timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Seeder is reseeded before every backend run, next to the shared random
// source. Register one for any other source of randomness the trace function
// draws from.
type Seeder interface {
	Seed(seed uint64)
}

// SeederFunc adapts a function to Seeder.
type SeederFunc func(seed uint64)

// Seed implements Seeder.
func (f SeederFunc) Seed(seed uint64) { f(seed) }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// uuidV7 generates time-ordered run ids.
type uuidV7 struct{}

func (uuidV7) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// Result is the outcome of CompareBackends.
type Result struct {
	// RunID identifies the run in the store and in archived artifacts.
	RunID string `json:"run_id"`

	// Passed is true when every target trace matched the reference.
	Passed bool `json:"passed"`

	// FailedBackends lists the ids of targets that did not match, in target
	// order.
	FailedBackends []string `json:"failed_backends"`

	// Errors holds every mismatch diagnostic, in target then call order.
	Errors []string `json:"errors"`

	// TraceDirs maps backend id to its persisted trace directory.
	TraceDirs map[string]string `json:"trace_dirs"`

	// Digests maps backend id to the trace's content digest.
	Digests map[string]string `json:"digests"`
}

// NewResult creates a new passing result.
func NewResult(runID string) *Result {
	return &Result{
		RunID:          runID,
		Passed:         true,
		FailedBackends: []string{},
		Errors:         []string{},
		TraceDirs:      make(map[string]string),
		Digests:        make(map[string]string),
	}
}

// AddFailure records a failing target and its diagnostics.
func (r *Result) AddFailure(backendID string, messages []string) {
	r.FailedBackends = append(r.FailedBackends, backendID)
	r.Errors = append(r.Errors, messages...)
	r.Passed = false
}

// Err returns a *MismatchError when any target failed, nil otherwise.
func (r *Result) Err() error {
	if r.Passed {
		return nil
	}
	return &MismatchError{
		FailedBackends: append([]string(nil), r.FailedBackends...),
		Messages:       append([]string(nil), r.Errors...),
	}
}

// MismatchError reports targets whose traces did not match the reference.
type MismatchError struct {
	FailedBackends []string
	Messages       []string
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Comparison between the reference backend and the following targets failed: [%s]. Errors: ",
		strings.Join(e.FailedBackends, ", "))
	for _, msg := range e.Messages {
		b.WriteString("\n  - ")
		b.WriteString(msg)
	}
	b.WriteString("\nSee the logs above for more details about the non-matching calls.")
	return b.String()
}

// contextErr reports a cancelled context with the backend it interrupted.
func contextErr(ctx context.Context, backendID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run %s: %w", backendID, err)
	}
	return nil
}
