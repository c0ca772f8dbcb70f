package pipeline

import (
	"time"

	"github.com/initializ/distpub/artifacts"
	"github.com/initializ/distpub/registry"
	"github.com/initializ/distpub/runtime"
	"github.com/initializ/distpub/secret"
	"github.com/initializ/distpub/security"
	"github.com/initializ/distpub/types"
)

// Options carries shared configuration for all pipeline stages.
type Options struct {
	WorkDir      string
	RunID        string
	AuditDir     string
	SkipExisting bool
	Env          runtime.Env
}

// RunContext carries all state through the publish pipeline.
type RunContext struct {
	Opts     Options
	Config   *types.WorkflowConfig
	Logger   runtime.Logger
	Redactor *runtime.Redactor

	// Set by the harden stage. Every outbound connection after it goes
	// through the guard.
	Guard *security.Guard
	// Set by the fetch stage.
	Bundle *artifacts.Bundle
	// Set by the publish stage.
	Published []registry.Published
	Warnings  []string

	apiToken     *secret.Buffer
	exposeSecret bool
	state        State
	history      []Transition
	failure      error
}

// NewRunContext creates a RunContext in StateNotStarted. The API token is
// held by the context and only handed to secret-consuming stages.
func NewRunContext(opts Options, cfg *types.WorkflowConfig, logger runtime.Logger, apiToken *secret.Buffer) *RunContext {
	if logger == nil {
		logger = runtime.NopLogger{}
	}
	return &RunContext{
		Opts:     opts,
		Config:   cfg,
		Logger:   logger,
		apiToken: apiToken,
		state:    StateNotStarted,
	}
}

// Secret returns the API token while a SecretConsumer stage is executing,
// and nil otherwise.
func (rc *RunContext) Secret() *secret.Buffer {
	if !rc.exposeSecret {
		return nil
	}
	return rc.apiToken
}

// AddWarning appends a warning message to the run context.
func (rc *RunContext) AddWarning(msg string) {
	rc.Warnings = append(rc.Warnings, msg)
}

// State returns the current lifecycle state.
func (rc *RunContext) State() State { return rc.state }

// History returns every recorded transition in order.
func (rc *RunContext) History() []Transition {
	return append([]Transition(nil), rc.history...)
}

// Err returns the error that failed the run, if any.
func (rc *RunContext) Err() error { return rc.failure }

func (rc *RunContext) canAdvance(to State) error {
	return checkTransition(rc.state, to)
}

func (rc *RunContext) advance(to State, stage string) error {
	if err := checkTransition(rc.state, to); err != nil {
		return err
	}
	rc.history = append(rc.history, Transition{From: rc.state, To: to, Stage: stage, At: time.Now().UTC()})
	rc.state = to
	return nil
}

func (rc *RunContext) fail(err error) {
	if rc.state.Terminal() {
		return
	}
	rc.history = append(rc.history, Transition{
		From:  rc.state,
		To:    StateFailed,
		At:    time.Now().UTC(),
		Error: rc.Redactor.Redact(err.Error()),
	})
	rc.state = StateFailed
	rc.failure = err
}
