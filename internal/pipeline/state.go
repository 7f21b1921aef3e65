// Package pipeline drives a run's asset streaming, account by account,
// through dimension resolution, JSONL spill, reservoir sampling, and
// final CSV generation.
package pipeline

import "fmt"

// State is one step of the pipeline's run-level state machine.
type State string

const (
	StateInitializing State = "initializing"
	StateFetching     State = "fetching"
	StateProcessing   State = "processing_page"
	StateGeneratingCSV State = "generating_csv"
	StateDone         State = "done"
	StateCancelled    State = "cancelled"
	StateError        State = "error"
)

// Machine tracks the pipeline's current state and the last error
// message recorded, if any.
type Machine struct {
	state      State
	pageNumber int
	errMessage string
}

// NewMachine returns a Machine in the initializing state.
func NewMachine() *Machine {
	return &Machine{state: StateInitializing}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// ToFetching transitions to fetching.
func (m *Machine) ToFetching() { m.state = StateFetching }

// ToProcessingPage transitions to processing_page_N.
func (m *Machine) ToProcessingPage(n int) {
	m.state = StateProcessing
	m.pageNumber = n
}

// StateLabel returns the human-readable state label, including the
// page number while processing.
func (m *Machine) StateLabel() string {
	if m.state == StateProcessing {
		return fmt.Sprintf("processing_page_%d", m.pageNumber)
	}
	return string(m.state)
}

// ToGeneratingCSV transitions to generating_csv.
func (m *Machine) ToGeneratingCSV() { m.state = StateGeneratingCSV }

// ToDone transitions to the done terminal state.
func (m *Machine) ToDone() { m.state = StateDone }

// ToCancelled transitions to the cancelled terminal state.
func (m *Machine) ToCancelled() { m.state = StateCancelled }

// ToError transitions to the error terminal state, recording message.
func (m *Machine) ToError(message string) {
	m.state = StateError
	m.errMessage = message
}

// ErrorMessage returns the recorded error message, if the state is error.
func (m *Machine) ErrorMessage() string { return m.errMessage }
