package app

import (
	"regexp"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
)

// placeholderPattern matches bare substitution markers such as {hostname}.
// File-reference markers ({file/<key>}) contain a slash and never match:
// the shim resolves those inside the sandbox, the runner passes them
// through untouched.
var placeholderPattern = regexp.MustCompile(`\{[a-zA-Z0-9_-]+\}`)

// ResolvedArguments is the outcome of resolving a plugin's argument
// template against one task's input.
type ResolvedArguments struct {
	// Invocations holds one argument list per sandbox run. Multi-input
	// templates with a per-item placeholder expand into one invocation per
	// input key, executed in input order.
	Invocations [][]string

	// BulkInput holds the input values handed to a single invocation via
	// the newline-separated environment side channel, when the template has
	// no per-item placeholder.
	BulkInput []string
}

// resolveArguments applies the argument template patterns in precedence
// order:
//  1. no input: arguments verbatim,
//  2. single input with placeholders: markers replaced with the value,
//  3. multiple inputs with a per-item placeholder: one invocation per value,
//  4. inputs without a placeholder: one invocation, values via side channel,
//  5. {file/<key>} markers: passed through untouched for the shim.
//
// File inputs substitute as {file/<key>} markers rather than literal keys,
// so the shim downloads them and hands the tool a local path.
func resolveArguments(template []string, input task.Input) (*ResolvedArguments, error) {
	hasPlaceholder := templateHasPlaceholder(template)

	if input.Kind == task.InputNone || len(input.Keys) == 0 {
		if hasPlaceholder {
			return nil, shared.NewDomainError("TEMPLATE", "argument template has placeholders but the task has no input", shared.ErrValidation)
		}
		return &ResolvedArguments{Invocations: [][]string{cloneArgs(template)}}, nil
	}

	if !hasPlaceholder {
		return &ResolvedArguments{
			Invocations: [][]string{cloneArgs(template)},
			BulkInput:   substitutionValues(input),
		}, nil
	}

	values := substitutionValues(input)
	invocations := make([][]string, 0, len(values))
	for _, value := range values {
		invocations = append(invocations, substitute(template, value))
	}
	return &ResolvedArguments{Invocations: invocations}, nil
}

// templateHasPlaceholder reports whether any argument contains a bare
// substitution marker.
func templateHasPlaceholder(template []string) bool {
	for _, arg := range template {
		if placeholderPattern.MatchString(arg) {
			return true
		}
	}
	return false
}

// substitutionValues maps input keys to the literal values substituted into
// the template: object keys as-is, file keys wrapped as shim-resolvable
// file references.
func substitutionValues(input task.Input) []string {
	values := make([]string, len(input.Keys))
	for i, key := range input.Keys {
		if input.Kind == task.InputFiles {
			values[i] = "{file/" + key + "}"
		} else {
			values[i] = key
		}
	}
	return values
}

func substitute(template []string, value string) []string {
	args := make([]string, len(template))
	for i, arg := range template {
		args[i] = placeholderPattern.ReplaceAllLiteralString(arg, value)
	}
	return args
}

func cloneArgs(template []string) []string {
	return append([]string(nil), template...)
}
