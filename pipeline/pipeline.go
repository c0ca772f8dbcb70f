// Package pipeline runs the publish workflow as a sequence of stages that
// move the run through a fixed state order.
package pipeline

import (
	"context"
	"fmt"
)

// Stage is a single unit of work in the publish pipeline.
type Stage interface {
	Name() string
	Execute(ctx context.Context, rc *RunContext) error
}

// Advancer is implemented by stages that move the run to a new state on
// success. The pipeline refuses to execute a stage whose target state is
// not the next one.
type Advancer interface {
	Advances() State
}

// SecretConsumer is implemented by the stages allowed to read the API
// token. Every other stage sees no secret.
type SecretConsumer interface {
	ConsumesSecret() bool
}

// Pipeline executes a sequence of stages in order.
type Pipeline struct {
	stages []Stage
}

// New creates a Pipeline from the given stages.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}

// Run executes each stage sequentially. It stops on the first error,
// marks the run failed, and returns the error wrapped with the stage name.
// A run that completes every stage ends in StateSucceeded.
func (p *Pipeline) Run(ctx context.Context, rc *RunContext) (err error) {
	defer func() {
		rc.exposeSecret = false
		if err != nil {
			rc.fail(err)
		}
	}()

	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline cancelled before stage %s: %w", s.Name(), err)
		}

		var target State
		if a, ok := s.(Advancer); ok {
			target = a.Advances()
			if err := rc.canAdvance(target); err != nil {
				return fmt.Errorf("stage %s: %w", s.Name(), err)
			}
		}

		sc, ok := s.(SecretConsumer)
		rc.exposeSecret = ok && sc.ConsumesSecret()

		rc.Logger.Info("stage started", map[string]any{"stage": s.Name()})
		err := s.Execute(ctx, rc)
		rc.exposeSecret = false
		if err != nil {
			rc.Logger.Error("stage failed", map[string]any{"stage": s.Name(), "error": err})
			return fmt.Errorf("stage %s: %w", s.Name(), err)
		}

		if target != "" {
			if err := rc.advance(target, s.Name()); err != nil {
				return fmt.Errorf("stage %s: %w", s.Name(), err)
			}
		}
		rc.Logger.Info("stage completed", map[string]any{"stage": s.Name(), "state": string(rc.State())})
	}

	if err := rc.advance(StateSucceeded, ""); err != nil {
		return err
	}
	return nil
}
