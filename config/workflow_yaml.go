// Package config loads publish.yaml from disk.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/initializ/distpub/types"
)

// LoadWorkflowConfig reads and parses a publish.yaml file from the given
// path. When the file does not exist and allowMissing is set, the built-in
// defaults are returned.
func LoadWorkflowConfig(path string, allowMissing bool) (*types.WorkflowConfig, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return types.DefaultWorkflowConfig(), nil, nil
		}
		return nil, nil, fmt.Errorf("reading workflow config %s: %w", path, err)
	}
	cfg, err := types.ParseWorkflowConfig(data)
	if err != nil {
		return nil, nil, err
	}
	return cfg, data, nil
}
