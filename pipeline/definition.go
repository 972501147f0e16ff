package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Canonical step ids, in the only order a job may declare them.
const (
	StepCheckout  = "checkout"
	StepSetup     = "setup"
	StepPreChecks = "pre-checks"
	StepTests     = "tests"
)

// stepOrder is the required sequence of step ids.
var stepOrder = []string{StepCheckout, StepSetup, StepPreChecks, StepTests}

// Definition is a declarative CI job: when it runs, under which toolchain
// versions, which auxiliary service it needs, and the steps it executes.
type Definition struct {
	// Name labels the job in logs and results.
	Name string `yaml:"name"`
	// On declares the trigger condition.
	On Trigger `yaml:"on"`
	// Matrix declares the toolchain versions the job repeats under.
	Matrix Matrix `yaml:"matrix"`
	// Service is the auxiliary container started alongside the job.
	// Optional.
	Service *Service `yaml:"service"`
	// Env is extra environment applied to every step.
	Env map[string]string `yaml:"env"`
	// Steps is the ordered step list. Validate enforces the canonical
	// sequence.
	Steps []Step `yaml:"steps"`
}

// Trigger declares when the job runs. Only push triggers exist.
type Trigger struct {
	// Push is non-nil when the job triggers on push events.
	Push *PushTrigger `yaml:"push"`
}

// PushTrigger scopes a push trigger to branches. An empty branch list means
// every branch.
type PushTrigger struct {
	Branches []string `yaml:"branches"`
}

// AllBranches reports whether the push trigger covers every branch.
func (p *PushTrigger) AllBranches() bool {
	return len(p.Branches) == 0
}

// Matrix is the job's single parameter axis: toolchain versions.
type Matrix struct {
	Toolchain []string `yaml:"toolchain"`
}

// Service describes the auxiliary container.
type Service struct {
	// Image is the container image reference.
	Image string `yaml:"image"`
	// Ports are "host:container" mappings.
	Ports []string `yaml:"ports"`
	// Env configures the service, e.g. which features to enable.
	Env map[string]string `yaml:"env"`
}

// HostPort returns the host side of the first port mapping, which is the port
// the runner waits on for readiness.
func (s *Service) HostPort() (string, error) {
	if len(s.Ports) == 0 {
		return "", fmt.Errorf("service %s declares no ports", s.Image)
	}
	host, _, ok := strings.Cut(s.Ports[0], ":")
	if !ok {
		return s.Ports[0], nil
	}
	return host, nil
}

// Step is one shell command in the job.
type Step struct {
	// ID is the canonical step id (checkout, setup, pre-checks, tests).
	ID string `yaml:"id"`
	// Run is the shell command the step executes.
	Run string `yaml:"run"`
}

// Load reads and parses a job definition from a YAML file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline definition: %w", err)
	}
	return Parse(data)
}

// Parse decodes a job definition. Unknown fields are rejected so typos in
// definitions fail loudly instead of being silently dropped.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline definition: %w", err)
	}
	return &def, nil
}

// Validate checks the structural rules of a definition:
//
//   - a push trigger must be declared
//   - the matrix must list at least one toolchain version
//   - the steps must be exactly checkout, setup, pre-checks, tests, in
//     that order, each with a command
//   - a declared service needs an image and at least one port mapping
func (d *Definition) Validate() error {
	if d.On.Push == nil {
		return fmt.Errorf("definition %q: push trigger is required", d.Name)
	}
	if len(d.Matrix.Toolchain) == 0 {
		return fmt.Errorf("definition %q: matrix needs at least one toolchain version", d.Name)
	}

	if len(d.Steps) != len(stepOrder) {
		return fmt.Errorf("definition %q: expected steps %v, got %d steps", d.Name, stepOrder, len(d.Steps))
	}
	for i, step := range d.Steps {
		if step.ID != stepOrder[i] {
			return fmt.Errorf("definition %q: step %d must be %q, got %q", d.Name, i+1, stepOrder[i], step.ID)
		}
		if strings.TrimSpace(step.Run) == "" {
			return fmt.Errorf("definition %q: step %q has no command", d.Name, step.ID)
		}
	}

	if d.Service != nil {
		if d.Service.Image == "" {
			return fmt.Errorf("definition %q: service needs an image", d.Name)
		}
		if _, err := d.Service.HostPort(); err != nil {
			return fmt.Errorf("definition %q: %w", d.Name, err)
		}
	}
	return nil
}
