package model

import "time"

// Run is one recorded pass over the test plan. Loop mode records one Run
// per cycle.
type Run struct {
	// Unique ID for this pass
	ID string `json:"id"`
	// Timestamp when the pass started
	Timestamp time.Time `json:"timestamp"`
	// Command-line arguments (including command name)
	Args []string `json:"args"`
	// Working directory where e2erun was started
	WorkDir string `json:"workdir"`
	// Duration of the pass
	Duration time.Duration `json:"duration"`
	// Cycle counts passes within one process, starting at 1
	Cycle int `json:"cycle"`
	// Loop is set when the process runs passes until killed
	Loop bool `json:"loop,omitempty"`
	// Summary is "ALL SUCCESS" or "F / T FAILED"
	Summary string `json:"summary"`
	Success bool   `json:"success"`
	// Git information
	Git *Git `json:"git,omitempty"`
	// Target is the deployment and browser under test
	Target Target `json:"target"`
	// Tests in execution order
	Tests []TestOutcome `json:"tests,omitempty"`
}

// Git contains git repository information
type Git struct {
	Commit string `json:"commit,omitempty"`
	Branch string `json:"branch,omitempty"`
	Repo   string `json:"repo,omitempty"`
}

// Target describes what the pass ran against.
type Target struct {
	URL              string `json:"url"`
	Browser          string `json:"browser"`
	Driver           string `json:"driver,omitempty"`
	AutomationServer string `json:"automation_server,omitempty"`
}

// TestOutcome is the verdict of one test in a pass.
type TestOutcome struct {
	Name     string `json:"name"`
	Verdict  string `json:"verdict"`
	Attempts int    `json:"attempts"`
	// Error and URL are set for failed tests only
	Error     string     `json:"error,omitempty"`
	URL       string     `json:"url,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Failed reports whether any test in the pass failed.
func (r Run) Failed() bool {
	return !r.Success
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeScreenshot ArtifactType = iota
	ArtifactTypeConsoleLog
	ArtifactTypeTrace
)

func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypeScreenshot:
		return "screenshot"
	case ArtifactTypeConsoleLog:
		return "console"
	case ArtifactTypeTrace:
		return "trace"
	}
	return "unknown"
}

// Artifact represents a file captured for a failed test
type Artifact struct {
	Type ArtifactType `json:"type"`
	Size uint64       `json:"size"`
	File string       `json:"file"` // relative to run dir
}
