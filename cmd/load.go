package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/initializ/distpub/config"
	"github.com/initializ/distpub/pipeline"
	"github.com/initializ/distpub/runtime"
	"github.com/initializ/distpub/types"
	"github.com/initializ/distpub/validate"
)

// resolveConfigPath makes cfgFile absolute against the working directory.
func resolveConfigPath() (string, error) {
	if filepath.IsAbs(cfgFile) {
		return cfgFile, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return filepath.Join(wd, cfgFile), nil
}

// loadAndValidate loads publish.yaml (or the defaults when allowMissing and
// the file is absent) and runs schema and semantic validation.
func loadAndValidate(allowMissing bool) (*types.WorkflowConfig, *validate.ValidationResult, error) {
	cfgPath, err := resolveConfigPath()
	if err != nil {
		return nil, nil, err
	}
	cfg, data, err := config.LoadWorkflowConfig(cfgPath, allowMissing)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: loading config: %w", pipeline.ErrConfiguration, err)
	}

	result := validate.ValidateWorkflowConfig(cfg)
	if data != nil {
		errs, err := validate.ValidateWorkflowSchema(data)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("schema: %v", err))
		}
		for _, e := range errs {
			result.Errors = append(result.Errors, fmt.Sprintf("schema: %s", e))
		}
	}
	return cfg, result, nil
}

// loadEnv reads --env-file over the process environment.
func loadEnv() (runtime.Env, error) {
	overlay, err := runtime.LoadEnvFile(envFile)
	if err != nil {
		return runtime.Env{}, fmt.Errorf("loading env file %s: %w", envFile, err)
	}
	return runtime.Env{Overlay: overlay}, nil
}

// resolveRunID prefers the flag, then GITHUB_RUN_ID.
func resolveRunID(flagVal string, env runtime.Env) string {
	if flagVal != "" {
		return flagVal
	}
	return env.Get("GITHUB_RUN_ID")
}
