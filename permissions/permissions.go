// Package permissions models the capability grants a run declares up
// front: read-only by default, with elevated grants listed one by one on
// the stage that needs them.
package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrPermissionDenied is returned when a stage needs a capability level it
// was not granted.
var ErrPermissionDenied = errors.New("permission denied")

// Level is the access level for one capability.
type Level string

const (
	LevelNone  Level = "none"
	LevelRead  Level = "read"
	LevelWrite Level = "write"
)

func (l Level) rank() int {
	switch l {
	case LevelRead:
		return 1
	case LevelWrite:
		return 2
	default:
		return 0
	}
}

// Capability names a grantable scope.
type Capability string

const (
	Actions      Capability = "actions"
	Attestations Capability = "attestations"
	Checks       Capability = "checks"
	Contents     Capability = "contents"
	Deployments  Capability = "deployments"
	IDToken      Capability = "id-token"
	Packages     Capability = "packages"
	Statuses     Capability = "statuses"
)

var knownCapabilities = map[Capability]bool{
	Actions: true, Attestations: true, Checks: true, Contents: true,
	Deployments: true, IDToken: true, Packages: true, Statuses: true,
}

// writeOnly capabilities have no read level.
var writeOnly = map[Capability]bool{IDToken: true}

// GrantSet maps capabilities to levels on top of a default level.
type GrantSet struct {
	Default Level
	Grants  map[Capability]Level
}

// ReadAll is the default declaration.
func ReadAll() GrantSet { return GrantSet{Default: LevelRead} }

// None grants nothing.
func None() GrantSet { return GrantSet{Default: LevelNone} }

// Parse builds a GrantSet from its textual form: "read-all", "write-all",
// or "cap=level,cap=level".
func Parse(s string) (GrantSet, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "read-all":
		return ReadAll(), nil
	case "write-all":
		return GrantSet{Default: LevelWrite}, nil
	}
	g := None()
	for _, part := range strings.Split(s, ",") {
		capName, level, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return GrantSet{}, fmt.Errorf("invalid permission %q: want capability=level", part)
		}
		if err := g.set(Capability(strings.TrimSpace(capName)), Level(strings.TrimSpace(level))); err != nil {
			return GrantSet{}, err
		}
	}
	return g, nil
}

// UnmarshalYAML accepts a scalar (read-all, write-all) or a mapping of
// capability to level. An empty mapping grants nothing.
func (g *GrantSet) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		parsed, err := Parse(node.Value)
		if err != nil {
			return err
		}
		*g = parsed
		return nil
	case yaml.MappingNode:
		var raw map[string]string
		if err := node.Decode(&raw); err != nil {
			return fmt.Errorf("decoding permissions: %w", err)
		}
		out := None()
		for k, v := range raw {
			if err := out.set(Capability(k), Level(v)); err != nil {
				return err
			}
		}
		*g = out
		return nil
	default:
		return fmt.Errorf("permissions must be a string or a mapping (line %d)", node.Line)
	}
}

// MarshalYAML writes the shortest form that round-trips.
func (g GrantSet) MarshalYAML() (any, error) {
	if len(g.Grants) == 0 {
		switch g.Default {
		case LevelRead, "":
			return "read-all", nil
		case LevelWrite:
			return "write-all", nil
		}
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(g.Grants))
	for c, l := range g.Grants {
		out[string(c)] = string(l)
	}
	return out, nil
}

func (g *GrantSet) set(c Capability, l Level) error {
	if !knownCapabilities[c] {
		return fmt.Errorf("unknown capability %q", c)
	}
	switch l {
	case LevelNone, LevelRead, LevelWrite:
	default:
		return fmt.Errorf("capability %s: invalid level %q (want none, read or write)", c, l)
	}
	if writeOnly[c] && l == LevelRead {
		return fmt.Errorf("capability %s supports only write or none", c)
	}
	if g.Grants == nil {
		g.Grants = make(map[Capability]Level)
	}
	g.Grants[c] = l
	return nil
}

// Level returns the effective level of c.
func (g GrantSet) Level(c Capability) Level {
	if l, ok := g.Grants[c]; ok {
		return l
	}
	if g.Default == "" {
		return LevelRead
	}
	if writeOnly[c] && g.Default == LevelRead {
		return LevelNone
	}
	return g.Default
}

// Allows reports whether c is granted at least want.
func (g GrantSet) Allows(c Capability, want Level) bool {
	return g.Level(c).rank() >= want.rank()
}

// Require returns ErrPermissionDenied when c is not granted at want.
func (g GrantSet) Require(c Capability, want Level) error {
	if g.Allows(c, want) {
		return nil
	}
	return fmt.Errorf("%w: %s requires %s, granted %s", ErrPermissionDenied, c, want, g.Level(c))
}

// Elevated lists capabilities granted write, sorted.
func (g GrantSet) Elevated() []Capability {
	var out []Capability
	if g.Default == LevelWrite {
		for c := range knownCapabilities {
			if l, ok := g.Grants[c]; ok && l != LevelWrite {
				continue
			}
			out = append(out, c)
		}
	} else {
		for c, l := range g.Grants {
			if l == LevelWrite {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String renders the grant set for logs.
func (g GrantSet) String() string {
	if len(g.Grants) == 0 {
		if g.Default == LevelWrite {
			return "write-all"
		}
		if g.Default == LevelNone {
			return "{}"
		}
		return "read-all"
	}
	parts := make([]string, 0, len(g.Grants))
	for c, l := range g.Grants {
		parts = append(parts, string(c)+"="+string(l))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// ValidateWorkflow reports workflow-level declarations that grant write.
// Elevated grants belong on the stage that uses them.
func ValidateWorkflow(g GrantSet) []string {
	var errs []string
	if g.Default == LevelWrite {
		errs = append(errs, "workflow permissions: write-all is not allowed; grant write per stage")
	}
	for _, c := range sortedGrants(g) {
		if g.Grants[c] == LevelWrite {
			errs = append(errs, fmt.Sprintf("workflow permissions: %s: write must be granted on the stage that needs it", c))
		}
	}
	return errs
}

// ValidateStage reports stage-level declarations that elevate in bulk.
func ValidateStage(stage string, g GrantSet) []string {
	if g.Default == LevelWrite {
		return []string{fmt.Sprintf("%s permissions: write-all is not allowed; list each elevated capability", stage)}
	}
	return nil
}

// Effective merges a stage's individual grants over the workflow
// declaration. Write grants are taken only from the stage; the workflow
// contributes at most read. The stage's default level is ignored.
func Effective(workflow, stage GrantSet) GrantSet {
	out := GrantSet{Default: clampRead(workflow.Default), Grants: make(map[Capability]Level)}
	for c, l := range workflow.Grants {
		out.Grants[c] = clampRead(l)
	}
	for c, l := range stage.Grants {
		out.Grants[c] = l
	}
	return out
}

func clampRead(l Level) Level {
	if l == LevelWrite {
		return LevelRead
	}
	if l == "" {
		return LevelRead
	}
	return l
}

func sortedGrants(g GrantSet) []Capability {
	out := make([]Capability, 0, len(g.Grants))
	for c := range g.Grants {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
