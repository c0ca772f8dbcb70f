package cmd

import (
	"fmt"
	"os"

	"github.com/initializ/distpub/security"
	"github.com/spf13/cobra"
)

var policyFormat string

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Print the resolved egress policy",
	RunE:  runPolicy,
}

func init() {
	policyCmd.Flags().StringVar(&policyFormat, "format", "json", "output format: json or k8s")
}

func runPolicy(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadAndValidate(true)
	if err != nil {
		return err
	}

	h := cfg.Harden
	resolved, err := security.Resolve(h.EgressPolicy, h.AllowedEndpoints, h.Capabilities)
	if err != nil {
		return fmt.Errorf("resolving egress: %w", err)
	}

	var data []byte
	switch policyFormat {
	case "json":
		data, err = security.GenerateAllowlistJSON(resolved, h.DisableSudo)
	case "k8s":
		data, err = security.GenerateK8sNetworkPolicy(cfg.Name, resolved)
	default:
		return fmt.Errorf("unknown format %q (want json or k8s)", policyFormat)
	}
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}
