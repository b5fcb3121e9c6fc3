package cli

// This file contains run recording: an engine observer that saves every
// pass and its failure artifacts to the history directory.

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/perfgo/e2erun/engine"
	"github.com/perfgo/e2erun/history"
	"github.com/perfgo/e2erun/model"
	"github.com/rs/zerolog"
)

type runRecorder struct {
	logger zerolog.Logger
	root   string
	target model.Target
	loop   bool
	args   []string
	git    *model.Git
	now    func() time.Time

	cycle   int
	current *model.Run
	runDir  string
}

var _ engine.Observer = (*runRecorder)(nil)

func newRunRecorder(logger zerolog.Logger, root string, target model.Target, loop bool) *runRecorder {
	r := &runRecorder{
		logger: logger,
		root:   root,
		target: target,
		loop:   loop,
		args:   os.Args,
		now:    time.Now,
	}
	// Git info is optional
	if info, err := gitInfo(); err == nil {
		r.git = info
	} else {
		logger.Debug().Err(err).Msg("Recording runs without git info")
	}
	return r
}

// begin starts a run record lazily, on the first event of a pass.
func (r *runRecorder) begin() {
	if r.current != nil {
		return
	}
	r.cycle++
	run := &model.Run{
		ID:        uuid.NewString(),
		Timestamp: r.now(),
		Args:      r.args,
		Cycle:     r.cycle,
		Loop:      r.loop,
		Git:       r.git,
		Target:    r.target,
	}
	if cwd, err := os.Getwd(); err == nil {
		run.WorkDir = cwd
	}

	// Create directory in <root>/<timestamp>-<id>
	runName := fmt.Sprintf("%s-%s", run.Timestamp.Format("20060102-150405"), run.ID[:8])
	r.runDir = filepath.Join(r.root, runName)
	if err := os.MkdirAll(r.runDir, 0755); err != nil {
		r.logger.Warn().Err(err).Str("dir", r.runDir).Msg("Failed to create run directory")
		r.runDir = ""
	}
	r.current = run
}

func (r *runRecorder) AttemptStarted(string, int) {
	r.begin()
}

func (r *runRecorder) TestFinished(test string, v engine.Verdict, attempts int, f *engine.Failure) {
	r.begin()
	outcome := model.TestOutcome{
		Name:     test,
		Verdict:  v.String(),
		Attempts: attempts,
	}
	if f != nil {
		outcome.URL = f.URL
		if f.Err != nil {
			outcome.Error = f.Err.Error()
		}
		if r.runDir != "" {
			outcome.Artifacts = r.saveArtifacts(r.runDir, test, f.Diagnostics)
		}
	}
	r.current.Tests = append(r.current.Tests, outcome)
}

func (r *runRecorder) PassFinished(res engine.RunResult) {
	r.begin()
	run := r.current
	runDir := r.runDir
	r.current, r.runDir = nil, ""

	run.Duration = r.now().Sub(run.Timestamp)
	run.Summary = res.Summary()
	run.Success = res.Success()

	if runDir == "" {
		return
	}
	// Recording is non-fatal
	if err := history.Write(runDir, *run); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record run")
		return
	}
	r.logger.Debug().Str("dir", runDir).Str("id", run.ID).Msg("Recorded run")
}
