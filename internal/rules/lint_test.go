package rules

import (
	"errors"
	"testing"

	"github.com/opensource-finance/peregrine/internal/domain"
)

func validRule(expr string) *domain.Rule {
	return &domain.Rule{
		RuleID:     "test-rule",
		DetectorID: "transaction_detector",
		Expression: expr,
		Outcomes:   []string{"review"},
		Language:   domain.RuleLanguage,
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"dollar variable", "$score > 900", "score > 900"},
		{"word and", "$score > 900 and $amount > 100.0", "score > 900 && amount > 100.0"},
		{"word or", "$score > 900 or $score < 10", "score > 900 || score < 10"},
		{"word not", "not ($score > 900)", "! (score > 900)"},
		{"and inside identifier untouched", "$brand_code == 'x'", "brand_code == 'x'"},
		{"already cel", "score > 900 && amount > 10.0", "score > 900 && amount > 10.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.expr); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLintValidExpressions(t *testing.T) {
	linter := NewLinter()

	exprs := []string{
		"$transaction_model_insightscore > 900",
		"$score > 900 and $amount > 100.0",
		"$category == 'electronics' or $score < 100",
		"not ($score > 500)",
	}
	for _, expr := range exprs {
		if err := linter.Lint(validRule(expr)); err != nil {
			t.Errorf("expected %q to lint cleanly: %v", expr, err)
		}
	}
}

func TestLintRejectsMalformedExpression(t *testing.T) {
	linter := NewLinter()

	if err := linter.Lint(validRule("$score > > 900")); err == nil {
		t.Error("expected error for malformed expression")
	}
}

func TestLintRejectsNonBoolean(t *testing.T) {
	linter := NewLinter()

	err := linter.Lint(validRule("1 + 2"))
	if !errors.Is(err, ErrNotBoolean) {
		t.Errorf("expected ErrNotBoolean, got %v", err)
	}
}

func TestLintRejectsEmptyExpression(t *testing.T) {
	linter := NewLinter()

	err := linter.Lint(validRule("   "))
	if !errors.Is(err, ErrEmptyExpression) {
		t.Errorf("expected ErrEmptyExpression, got %v", err)
	}
}

func TestLintRejectsMissingOutcomes(t *testing.T) {
	linter := NewLinter()

	rule := validRule("$score > 900")
	rule.Outcomes = nil

	err := linter.Lint(rule)
	if !errors.Is(err, ErrNoOutcomes) {
		t.Errorf("expected ErrNoOutcomes, got %v", err)
	}
}
