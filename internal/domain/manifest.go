package domain

import "fmt"

// Stage names a pipeline step.
type Stage string

const (
	StageHarvest   Stage = "harvest"
	StageFetch     Stage = "fetch"
	StageSearch    Stage = "search"
	StageAggregate Stage = "aggregate"
	StageReport    Stage = "report"
)

// FailurePolicy decides what a stage does when a single unit fails.
type FailurePolicy string

const (
	PolicyAbort FailurePolicy = "abort"
	PolicySkip  FailurePolicy = "skip"
)

// ParsePolicy validates a policy string; empty means abort.
func ParsePolicy(value string) (FailurePolicy, error) {
	switch FailurePolicy(value) {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", value)
	}
}

// Failure records a unit that was skipped under PolicySkip.
type Failure struct {
	Stage Stage  `json:"stage"`
	Unit  string `json:"unit"`
	Error string `json:"error"`
}

// Manifest is the explicit hand-off between stages.
type Manifest struct {
	RunID       string         `json:"runId"`
	WorkDir     string         `json:"workDir"`
	Sequences   []SequenceFile `json:"sequences"`
	Accessions  []string       `json:"accessions"`
	Profiles    []Profile      `json:"profiles"`
	Pairs       []SearchPair   `json:"pairs"`
	Failures    []Failure      `json:"failures,omitempty"`
	ScriptPath  string         `json:"scriptPath,omitempty"`
	SummaryPath string         `json:"summaryPath,omitempty"`
	Charts      []string       `json:"charts,omitempty"`
}

// Fail appends a failure record.
func (m *Manifest) Fail(stage Stage, unit string, err error) {
	m.Failures = append(m.Failures, Failure{Stage: stage, Unit: unit, Error: err.Error()})
}

// CompletedPairs returns the pairs whose output file was produced.
func (m *Manifest) CompletedPairs() []SearchPair {
	done := make([]SearchPair, 0, len(m.Pairs))
	for _, p := range m.Pairs {
		if p.Done {
			done = append(done, p)
		}
	}
	return done
}
