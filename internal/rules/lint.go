// Package rules provides local validation for detector rule
// expressions before they are sent to the remote service. The service
// rejects malformed rules only at deploy time, so the linter catches
// broken expressions early by normalizing them to CEL and compiling.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/peregrine/internal/domain"
)

var (
	ErrEmptyExpression = errors.New("rule expression is empty")
	ErrNoOutcomes      = errors.New("rule has no outcomes")
	ErrNotBoolean      = errors.New("rule expression must evaluate to bool")
)

var (
	dollarVar  = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	wordOps    = regexp.MustCompile(`\b(and|or|not)\b`)
	identifier = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

// celKeywords are identifiers that must not be declared as variables.
var celKeywords = map[string]struct{}{
	"true": {}, "false": {}, "null": {}, "in": {},
	"size": {}, "has": {}, "matches": {},
	"startsWith": {}, "endsWith": {}, "contains": {},
	"int": {}, "uint": {}, "double": {}, "string": {}, "bool": {},
	"bytes": {}, "timestamp": {}, "duration": {}, "type": {},
}

// Linter validates rule expressions by compiling their CEL
// normalization.
type Linter struct{}

// NewLinter creates a rule expression linter.
func NewLinter() *Linter {
	return &Linter{}
}

// Normalize rewrites a detector rule expression into CEL: $variable
// references become plain identifiers and the word operators and/or/not
// become &&, ||, and !.
func Normalize(expr string) string {
	out := dollarVar.ReplaceAllString(expr, "$1")
	out = wordOps.ReplaceAllStringFunc(out, func(op string) string {
		switch op {
		case "and":
			return "&&"
		case "or":
			return "||"
		default:
			return "!"
		}
	})
	return strings.TrimSpace(out)
}

// Lint validates a rule: the expression must normalize to a CEL
// expression that compiles and evaluates to bool, and at least one
// outcome must be named.
func (l *Linter) Lint(r *domain.Rule) error {
	if r == nil {
		return fmt.Errorf("rule is required")
	}
	if strings.TrimSpace(r.Expression) == "" {
		return fmt.Errorf("%w: rule %s", ErrEmptyExpression, r.RuleID)
	}
	if len(r.Outcomes) == 0 {
		return fmt.Errorf("%w: rule %s", ErrNoOutcomes, r.RuleID)
	}

	normalized := Normalize(r.Expression)

	env, err := newEnv(normalized)
	if err != nil {
		return fmt.Errorf("rule %s: %w", r.RuleID, err)
	}

	ast, issues := env.Compile(normalized)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("failed to compile rule %s: %w", r.RuleID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("%w: rule %s evaluates to %s", ErrNotBoolean, r.RuleID, ast.OutputType())
	}

	return nil
}

// newEnv builds a CEL environment declaring every identifier in the
// expression as a dynamic variable. The remote service binds them at
// evaluation time, so locally their types are unknown.
func newEnv(normalized string) (*cel.Env, error) {
	seen := make(map[string]struct{})
	var opts []cel.EnvOption
	for _, name := range identifier.FindAllString(normalized, -1) {
		if _, keyword := celKeywords[name]; keyword {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}
