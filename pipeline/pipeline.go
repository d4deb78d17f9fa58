// Package pipeline loads declarative operation pipelines from HCL files and
// materializes them as wired operations ready for a queue. It is a front end
// for the library; the core packages do not depend on it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/sudoplatform/sudo-operations-go/internal/ctxlog"
	"github.com/sudoplatform/sudo-operations-go/observers"
	"github.com/sudoplatform/sudo-operations-go/operations"
)

// Step is the agnostic model of one declared operation.
type Step struct {
	Name     string
	After    []string
	Duration time.Duration
	Fail     bool
	Message  string
	Payload  string
	Timeout  time.Duration
}

// Pipeline is the aggregated view of every operation block found in a path.
// Configurations may be split across many files; dependencies may span them.
type Pipeline struct {
	Steps []*Step
}

// hclFile represents the top-level structure of a pipeline file for decoding.
type hclFile struct {
	Operations []*hclOperation `hcl:"operation,block"`
}

type hclOperation struct {
	Name     string    `hcl:"name,label"`
	After    []string  `hcl:"after,optional"`
	Duration string    `hcl:"duration,optional"`
	Fail     bool      `hcl:"fail,optional"`
	Message  string    `hcl:"message,optional"`
	Payload  cty.Value `hcl:"payload,optional"`
	Timeout  string    `hcl:"timeout,optional"`
}

// Load finds and parses every .hcl file under path (a single file or a
// directory tree) into a Pipeline.
func Load(ctx context.Context, path string) (*Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading pipeline from path.", "path", path)

	files, err := findHCLFiles(path)
	if err != nil {
		return nil, fmt.Errorf("failed to find pipeline files in %s: %w", path, err)
	}

	p := &Pipeline{}
	if len(files) == 0 {
		logger.Warn("No .hcl files found in path, returning empty pipeline.", "path", path)
		return p, nil
	}

	parser := hclparse.NewParser()
	for _, file := range files {
		steps, err := stepsFromFile(file, parser)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, steps...)
	}
	return p, nil
}

// stepsFromFile parses a single HCL file and translates its operation blocks
// into the agnostic model.
func stepsFromFile(path string, parser *hclparse.Parser) ([]*Step, error) {
	hclF, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(hclF.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	steps := make([]*Step, 0, len(parsed.Operations))
	for _, block := range parsed.Operations {
		step, err := translate(block)
		if err != nil {
			return nil, fmt.Errorf("error in operation %q (%s): %w", block.Name, path, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// translate converts an HCL operation block into a Step, parsing durations
// and rendering arbitrary payload values to strings.
func translate(block *hclOperation) (*Step, error) {
	step := &Step{
		Name:    block.Name,
		After:   block.After,
		Fail:    block.Fail,
		Message: block.Message,
	}

	if block.Duration != "" {
		d, err := time.ParseDuration(block.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid duration: %w", err)
		}
		step.Duration = d
	}
	if block.Timeout != "" {
		d, err := time.ParseDuration(block.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		step.Timeout = d
	}

	if block.Payload != cty.NilVal && !block.Payload.IsNull() {
		rendered, err := convert.Convert(block.Payload, cty.String)
		if err != nil {
			return nil, fmt.Errorf("payload is not representable as a string: %w", err)
		}
		step.Payload = rendered.AsString()
	}

	return step, nil
}

// Build materializes the pipeline as operations with dependencies and
// timeout watchdogs wired, in declaration order. Every name referenced in an
// `after` list must be declared somewhere in the pipeline.
func (p *Pipeline) Build(logger *slog.Logger) ([]*operations.Operation, error) {
	byName := make(map[string]*operations.Operation, len(p.Steps))
	ops := make([]*operations.Operation, 0, len(p.Steps))

	for _, step := range p.Steps {
		if _, ok := byName[step.Name]; ok {
			return nil, fmt.Errorf("operation %q is declared more than once", step.Name)
		}
		op := operations.NewFunc(step.body(logger),
			operations.WithName(step.Name),
			operations.WithLogger(logger),
		)
		if step.Timeout > 0 {
			op.AddObserver(&observers.Timeout{After: step.Timeout})
		}
		byName[step.Name] = op
		ops = append(ops, op)
	}

	for i, step := range p.Steps {
		for _, dep := range step.After {
			target, ok := byName[dep]
			if !ok {
				return nil, fmt.Errorf("operation %q depends on unknown operation %q", step.Name, dep)
			}
			ops[i].AddDependency(target)
		}
	}

	return ops, nil
}

// body returns the operation body for one step: simulate work for the
// declared duration (checking for cooperative cancellation), emit the
// message, then finish.
func (s *Step) body(logger *slog.Logger) func(op *operations.Operation) {
	step := *s
	return func(op *operations.Operation) {
		if step.Duration > 0 {
			deadline := time.NewTimer(step.Duration)
			defer deadline.Stop()
			poll := time.NewTicker(10 * time.Millisecond)
			defer poll.Stop()
		wait:
			for {
				select {
				case <-deadline.C:
					break wait
				case <-poll.C:
					if op.Cancelled() {
						op.Finish()
						return
					}
				}
			}
		}

		if step.Message != "" {
			logger.Info(step.Message, "operation", step.Name, "payload", step.Payload)
		}
		if step.Fail {
			op.FinishWithError(fmt.Errorf("operation %q is declared with fail = true", step.Name))
			return
		}
		op.Finish()
	}
}
