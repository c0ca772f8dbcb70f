package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/initializ/distpub/internal/tui"
	"github.com/initializ/distpub/pipeline"
	"github.com/initializ/distpub/registry"
	"github.com/initializ/distpub/runtime"
	"github.com/initializ/distpub/secret"
	"github.com/initializ/distpub/stages"
	"github.com/initializ/distpub/types"
	"github.com/spf13/cobra"
)

var (
	runAPITokenFile string
	runRunID        string
	runAuditDir     string
	runSkipExisting bool
)

// RunRecordFile is written to --audit-dir after every run.
const RunRecordFile = "run.json"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harden the runner, fetch the distribution bundle, and publish it",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runAPITokenFile, "api-token-file", "", "read the API token from a file (- for stdin) instead of the environment")
	runCmd.Flags().StringVar(&runRunID, "run-id", "", "workflow run id (default $GITHUB_RUN_ID)")
	runCmd.Flags().StringVar(&runAuditDir, "audit-dir", "", "directory for the egress allowlist and run record")
	runCmd.Flags().BoolVar(&runSkipExisting, "skip-existing", false, "treat files already on the index as published")
}

// newStages builds the pipeline stages. Tests replace it to avoid touching
// process-wide state.
var newStages = func() []pipeline.Stage {
	return []pipeline.Stage{
		&stages.HardenStage{InstallDefault: true},
		&stages.FetchStage{},
		&stages.PublishStage{},
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	redactor := runtime.NewRedactor()
	logger := runtime.NewJSONLogger(os.Stderr, verbose, redactor)

	cfg, result, err := loadAndValidate(true)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		logger.Warn(w, nil)
	}
	if !result.IsValid() {
		for _, e := range result.Errors {
			logger.Error(e, nil)
		}
		return fmt.Errorf("%w: %d error(s)", pipeline.ErrConfiguration, len(result.Errors))
	}

	token, err := loadAPIToken(cfg, env)
	if err != nil {
		logger.Error("run failed", map[string]any{"category": string(pipeline.Classify(err)), "error": err})
		return err
	}
	defer func() { _ = token.Close() }()
	redactor.Track(token.Reveal())

	runID := resolveRunID(runRunID, env)
	if runID == "" {
		return fmt.Errorf("%w: run id is required (--run-id or GITHUB_RUN_ID)", pipeline.ErrConfiguration)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	rc := pipeline.NewRunContext(pipeline.Options{
		WorkDir:      wd,
		RunID:        runID,
		AuditDir:     runAuditDir,
		SkipExisting: runSkipExisting,
		Env:          env,
	}, cfg, logger, token)
	rc.Redactor = redactor

	logger.Info("run started", map[string]any{
		"workflow":    cfg.Name,
		"run_id":      runID,
		"environment": cfg.Environment.Name,
		"permissions": cfg.Permissions.String(),
		"version":     appVersion,
	})

	started := time.Now()
	runErr := pipeline.New(newStages()...).Run(ctx, rc)

	if runAuditDir != "" {
		if err := writeRunRecord(runAuditDir, rc, redactor); err != nil {
			logger.Warn("writing run record failed", map[string]any{"error": err})
		}
	}
	printSummary(rc, time.Since(started))

	if runErr != nil {
		logger.Error("run failed", map[string]any{
			"category": string(pipeline.Classify(runErr)),
			"state":    string(rc.State()),
			"error":    runErr,
		})
		return runErr
	}
	logger.Info("run succeeded", map[string]any{"published": len(rc.Published)})
	return nil
}

// loadAPIToken reads the mandatory API token before any stage runs. The
// variable is removed from the process environment and the env overlay so
// that only the publish stage, through RunContext.Secret, can reach it.
func loadAPIToken(cfg *types.WorkflowConfig, env runtime.Env) (*secret.Buffer, error) {
	if runAPITokenFile != "" {
		buf, err := secret.ReadFromPath(runAPITokenFile)
		if errors.Is(err, secret.ErrEmpty) {
			return nil, fmt.Errorf("%w: %s is empty", registry.ErrMissingCredential, runAPITokenFile)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", registry.ErrMissingCredential, err)
		}
		return buf, nil
	}

	name := cfg.Publish.SecretEnv
	value := strings.TrimSpace(env.Get(name))
	_ = os.Unsetenv(name)
	delete(env.Overlay, name)
	if value == "" {
		return nil, fmt.Errorf("%w: %s is not set", registry.ErrMissingCredential, name)
	}
	buf, err := secret.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", registry.ErrMissingCredential, err)
	}
	return buf, nil
}

type runRecord struct {
	Workflow    string                `json:"workflow"`
	RunID       string                `json:"run_id"`
	State       pipeline.State        `json:"state"`
	Category    pipeline.Category     `json:"category,omitempty"`
	Transitions []pipeline.Transition `json:"transitions"`
	Bundle      string                `json:"bundle,omitempty"`
	Files       int                   `json:"files,omitempty"`
	Published   []registry.Published  `json:"published,omitempty"`
	Warnings    []string              `json:"warnings,omitempty"`
}

func writeRunRecord(dir string, rc *pipeline.RunContext, redactor *runtime.Redactor) error {
	rec := runRecord{
		Workflow:    rc.Config.Name,
		RunID:       rc.Opts.RunID,
		State:       rc.State(),
		Category:    pipeline.Classify(rc.Err()),
		Transitions: rc.History(),
		Published:   rc.Published,
		Warnings:    rc.Warnings,
	}
	if rc.Bundle != nil {
		rec.Bundle = rc.Bundle.Name
		rec.Files = len(rc.Bundle.Files)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, RunRecordFile), []byte(redactor.Redact(string(data))), 0o644)
}

func printSummary(rc *pipeline.RunContext, elapsed time.Duration) {
	status := "succeeded"
	if rc.State() != pipeline.StateSucceeded {
		status = "failed"
	}
	s := tui.Summary{
		Title:    rc.Config.Name,
		Status:   status,
		Warnings: rc.Warnings,
	}
	if rc.Guard != nil {
		s.Rows = append(s.Rows, tui.SummaryRow{Key: "Egress", Value: fmt.Sprintf("%s (%d endpoints)", rc.Guard.Policy(), len(rc.Guard.Config().AllEndpoints))})
	}
	if rc.Bundle != nil {
		s.Rows = append(s.Rows, tui.SummaryRow{Key: "Bundle", Value: fmt.Sprintf("%s (%d files)", rc.Bundle.Name, len(rc.Bundle.Files))})
	}
	for _, p := range rc.Published {
		label := "Published"
		if p.Skipped {
			label = "Skipped"
		}
		s.Rows = append(s.Rows, tui.SummaryRow{Key: label, Value: p.Filename})
	}
	if rc.Config.Environment.URL != "" {
		s.Rows = append(s.Rows, tui.SummaryRow{Key: "Environment", Value: rc.Config.Environment.URL})
	}
	if err := rc.Err(); err != nil {
		s.Rows = append(s.Rows, tui.SummaryRow{Key: "Failure", Value: string(pipeline.Classify(err))})
	}
	s.Rows = append(s.Rows, tui.SummaryRow{Key: "Elapsed", Value: elapsed.Round(time.Millisecond).String()})

	_ = tui.NewRenderer(os.Stdout).Render(os.Stdout, s)
}
