package security

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"
)

// Kubernetes NetworkPolicy cannot select by hostname. The policy limits
// egress to the allowlisted ports plus DNS, and records the hostnames in
// an annotation for a DNS-aware enforcer.
const networkPolicyTemplate = `apiVersion: networking.k8s.io/v1
kind: NetworkPolicy
metadata:
  name: {{.Name}}-egress
  labels:
    app: {{.Name}}
  {{- if .Annotation}}
  annotations:
    distpub.initializ.ai/allowed-endpoints: "{{.Annotation}}"
  {{- end}}
spec:
  podSelector:
    matchLabels:
      app: {{.Name}}
  policyTypes:
    - Egress
  {{- if .DenyAll}}
  egress: []
  {{- else}}
  egress:
    - to: []
      ports:
        - protocol: UDP
          port: 53
        - protocol: TCP
          port: 53
        {{- range .Ports}}
        - protocol: TCP
          port: {{.}}
        {{- end}}
  {{- end}}`

type networkPolicyTemplateData struct {
	Name       string
	DenyAll    bool
	Annotation string
	Ports      []int
}

// GenerateK8sNetworkPolicy renders a NetworkPolicy for runner pods labelled
// app=<name>.
func GenerateK8sNetworkPolicy(name string, cfg *EgressConfig) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("egress config is nil")
	}

	data := networkPolicyTemplateData{Name: name}

	switch cfg.Policy {
	case PolicyDenyAll:
		data.DenyAll = true
	case PolicyAudit:
		data.Ports = []int{80, 443}
	case PolicyBlock:
		if len(cfg.AllEndpoints) == 0 {
			data.DenyAll = true
			break
		}
		data.Annotation = strings.Join(cfg.AllEndpoints, ",")
		ports, err := endpointPorts(cfg.AllEndpoints)
		if err != nil {
			return nil, err
		}
		data.Ports = ports
	}

	tmpl, err := template.New("network-policy").Parse(networkPolicyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing network policy template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering network policy: %w", err)
	}
	return buf.Bytes(), nil
}

func endpointPorts(endpoints []string) ([]int, error) {
	seen := make(map[int]bool)
	var ports []int
	for _, raw := range endpoints {
		ep, err := ParseEndpoint(raw)
		if err != nil {
			return nil, err
		}
		if ep.Port == "*" {
			return nil, fmt.Errorf("endpoint %s: wildcard ports cannot be expressed as a NetworkPolicy", raw)
		}
		p, _ := strconv.Atoi(ep.Port)
		if !seen[p] {
			seen[p] = true
			ports = append(ports, p)
		}
	}
	sort.Ints(ports)
	return ports, nil
}
