package profiler

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/opensource-finance/peregrine/internal/dataset"
	"github.com/opensource-finance/peregrine/internal/domain"
)

func testTable(t *testing.T) *dataset.Table {
	t.Helper()
	tbl, err := dataset.New(
		dataset.Col("Category", "A", "B", "B", "C"),
		dataset.Col("Value", 42, 24, 42, 42),
		dataset.Col("EVENT_LABEL", "legit", "legit", "legit", "fraud"),
		dataset.Col("EVENT_TIMESTAMP", "2023-01-01T00:00:00Z", "2023-01-02T00:00:00Z", "2023-01-03T00:00:00Z", "2023-01-04T00:00:00Z"),
	)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}
	return tbl
}

func newProfiler() *Profiler {
	return New(slog.Default())
}

func findProfile(t *testing.T, profiles []ColumnProfile, name string) ColumnProfile {
	t.Helper()
	for _, cp := range profiles {
		if cp.Name == name {
			return cp
		}
	}
	t.Fatalf("no profile for column %s", name)
	return ColumnProfile{}
}

func TestSummaryStatsCounts(t *testing.T) {
	profiles, err := newProfiler().SummaryStats(testTable(t), Options{})
	if err != nil {
		t.Fatalf("failed to compute stats: %v", err)
	}

	cat := findProfile(t, profiles, "Category")
	if cat.Count != 4 {
		t.Errorf("expected count 4, got %d", cat.Count)
	}
	if cat.NUnique != 3 {
		t.Errorf("expected 3 distinct values, got %d", cat.NUnique)
	}
	if cat.Null != 0 {
		t.Errorf("expected 0 nulls, got %d", cat.Null)
	}
	if cat.NotNull != 4 {
		t.Errorf("expected 4 not-null, got %d", cat.NotNull)
	}
	if cat.NullPct != 0.0 {
		t.Errorf("expected null pct 0, got %v", cat.NullPct)
	}
	if cat.NUniquePct != 0.75 {
		t.Errorf("expected nunique pct 0.75, got %v", cat.NUniquePct)
	}

	val := findProfile(t, profiles, "Value")
	if val.NUnique != 2 {
		t.Errorf("expected 2 distinct values, got %d", val.NUnique)
	}
	if val.NUniquePct != 0.5 {
		t.Errorf("expected nunique pct 0.5, got %v", val.NUniquePct)
	}
}

func TestNullAndNotNullSumToRowCount(t *testing.T) {
	tbl, err := dataset.New(
		dataset.Col("sparse", 1, nil, nil, 4),
		dataset.Col("EVENT_LABEL", "legit", "fraud", "legit", "legit"),
		dataset.Col("EVENT_TIMESTAMP", "t1", "t2", "t3", "t4"),
	)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	profiles, err := newProfiler().SummaryStats(tbl, Options{})
	if err != nil {
		t.Fatalf("failed to compute stats: %v", err)
	}

	for _, cp := range profiles {
		if cp.Null+cp.NotNull != tbl.RowCount() {
			t.Errorf("column %s: null %d + not_null %d != %d rows", cp.Name, cp.Null, cp.NotNull, tbl.RowCount())
		}
		if cp.NullPct < 0 || cp.NullPct > 1 {
			t.Errorf("column %s: null pct %v out of [0,1]", cp.Name, cp.NullPct)
		}
		if cp.NUniquePct < 0 || cp.NUniquePct > 1 {
			t.Errorf("column %s: nunique pct %v out of [0,1]", cp.Name, cp.NUniquePct)
		}
	}
}

func TestFeatureTypeMapping(t *testing.T) {
	tbl, err := dataset.New(
		dataset.Col("Category", "A", "B"),
		dataset.Col("Value", 1, 2),
		dataset.Col("ip_address", "1.2.3.4", "5.6.7.8"),
		dataset.Col("customer_email", "a@x.com", "b@x.com"),
		dataset.Col("EVENT_LABEL", "legit", "fraud"),
		dataset.Col("EVENT_TIMESTAMP", "t1", "t2"),
	)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	profiles, err := newProfiler().SummaryStats(tbl, Options{})
	if err != nil {
		t.Fatalf("failed to compute stats: %v", err)
	}

	want := map[string]FeatureType{
		"Category":        FeatureCategory,
		"Value":           FeatureNumeric,
		"ip_address":      FeatureIPAddress,
		"customer_email":  FeatureEmail,
		"EVENT_LABEL":     FeatureTarget,
		"EVENT_TIMESTAMP": FeatureTimestamp,
	}
	for name, ft := range want {
		got := findProfile(t, profiles, name).FeatureType
		if got != ft {
			t.Errorf("column %s: expected %s, got %s", name, ft, got)
		}
	}
}

func TestNamePatternOverridesDType(t *testing.T) {
	// Numeric dtype loses to the name-pattern rules.
	tbl, err := dataset.New(
		dataset.Col("ipaddr_v4", 167772161, 167772162),
		dataset.Col("EVENT_LABEL", "legit", "fraud"),
		dataset.Col("EVENT_TIMESTAMP", "t1", "t2"),
	)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	profiles, err := newProfiler().SummaryStats(tbl, Options{})
	if err != nil {
		t.Fatalf("failed to compute stats: %v", err)
	}

	ip := findProfile(t, profiles, "ipaddr_v4")
	if ip.FeatureType != FeatureIPAddress {
		t.Errorf("expected IP_ADDRESS, got %s", ip.FeatureType)
	}
}

func TestWarningScreening(t *testing.T) {
	tests := []struct {
		name string
		col  dataset.Column
		want string
	}{
		{
			"high unique category",
			dataset.Col("id", "a", "b", "c", "d", "e", "f", "g", "h", "i", "j"),
			WarnHighUnique,
		},
		{
			"some missing",
			dataset.Col("c", "x", "x", "x", "x", "x", "x", "x", nil, nil, nil),
			WarnSomeMissing,
		},
		{
			"mostly missing",
			dataset.Col("c", "x", "x", "x", nil, nil, nil, nil, nil, nil, nil),
			WarnMostlyMissing,
		},
		{
			"low cardinality numeric",
			dataset.Col("c", 1, 1, 1, 1, 1, 1, 1, 1, 1, 1),
			WarnLowCardinality,
		},
		{
			"clean column",
			dataset.Col("c", "a", "a", "b", "b", "c", "c", "d", "d", "e", "e"),
			WarnNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := make([]any, 10)
			stamps := make([]any, 10)
			for i := range labels {
				labels[i] = "legit"
				stamps[i] = "t"
			}
			labels[0] = "fraud"

			tbl, err := dataset.New(
				tt.col,
				dataset.Col("EVENT_LABEL", labels...),
				dataset.Col("EVENT_TIMESTAMP", stamps...),
			)
			if err != nil {
				t.Fatalf("failed to build table: %v", err)
			}

			profiles, err := newProfiler().SummaryStats(tbl, Options{})
			if err != nil {
				t.Fatalf("failed to compute stats: %v", err)
			}

			got := findProfile(t, profiles, tt.col.Name).Warning
			if got != tt.want {
				t.Errorf("expected warning %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMostlyMissingOverridesSomeMissing(t *testing.T) {
	// 60% nulls matches only the >50% rule, which sits later in the
	// list and must win over the 20-50% band.
	col := dataset.Col("c", "x", "x", "x", "x", nil, nil, nil, nil, nil, nil)
	labels := make([]any, 10)
	stamps := make([]any, 10)
	for i := range labels {
		labels[i] = "legit"
		stamps[i] = "t"
	}
	labels[0] = "fraud"

	tbl, err := dataset.New(col,
		dataset.Col("EVENT_LABEL", labels...),
		dataset.Col("EVENT_TIMESTAMP", stamps...))
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	profiles, err := newProfiler().SummaryStats(tbl, Options{})
	if err != nil {
		t.Fatalf("failed to compute stats: %v", err)
	}

	if got := findProfile(t, profiles, "c").Warning; got != WarnMostlyMissing {
		t.Errorf("expected %q, got %q", WarnMostlyMissing, got)
	}
}

func TestNonBinaryLabelWarning(t *testing.T) {
	tbl, err := dataset.New(
		dataset.Col("EVENT_LABEL", "legit", "fraud", "other"),
		dataset.Col("EVENT_TIMESTAMP", "t1", "t2", "t3"),
	)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	profiles, err := newProfiler().SummaryStats(tbl, Options{})
	if err != nil {
		t.Fatalf("failed to compute stats: %v", err)
	}

	if got := findProfile(t, profiles, "EVENT_LABEL").Warning; got != WarnNonBinaryLabel {
		t.Errorf("expected %q, got %q", WarnNonBinaryLabel, got)
	}
}

func TestMissingColumnsRejected(t *testing.T) {
	tbl, err := dataset.New(dataset.Col("a", 1, 2))
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	_, err = newProfiler().SummaryStats(tbl, Options{})
	if !errors.Is(err, ErrMissingColumns) {
		t.Errorf("expected ErrMissingColumns, got %v", err)
	}
}

func TestInputs(t *testing.T) {
	inputs, err := newProfiler().Inputs(testTable(t), Options{})
	if err != nil {
		t.Fatalf("failed to derive inputs: %v", err)
	}

	// Labels in first-occurrence order.
	if len(inputs.Labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(inputs.Labels))
	}
	if inputs.Labels[0].Name != "legit" || inputs.Labels[1].Name != "fraud" {
		t.Errorf("expected labels [legit fraud], got %v", inputs.Labels)
	}

	// Minority count maps to FRAUD, majority to LEGIT.
	mapper := inputs.Schema.LabelSchema.LabelMapper
	if got := mapper[domain.LabelMapperFraud]; len(got) != 1 || got[0] != "fraud" {
		t.Errorf("expected FRAUD -> [fraud], got %v", got)
	}
	if got := mapper[domain.LabelMapperLegit]; len(got) != 1 || got[0] != "legit" {
		t.Errorf("expected LEGIT -> [legit], got %v", got)
	}

	// Variables exclude the label and timestamp columns.
	if len(inputs.Variables) != 2 {
		t.Fatalf("expected 2 variables, got %d", len(inputs.Variables))
	}
	if inputs.Variables[0].Name != "Category" || inputs.Variables[1].Name != "Value" {
		t.Errorf("expected variables [Category Value], got %v", inputs.Variables)
	}

	if len(inputs.Schema.ModelVariables) != 2 {
		t.Fatalf("expected 2 model variables, got %v", inputs.Schema.ModelVariables)
	}
	if inputs.Schema.ModelVariables[0] != "Category" || inputs.Schema.ModelVariables[1] != "Value" {
		t.Errorf("expected model variables [Category Value], got %v", inputs.Schema.ModelVariables)
	}
}

func TestVariableTyping(t *testing.T) {
	inputs, err := newProfiler().Inputs(testTable(t), Options{})
	if err != nil {
		t.Fatalf("failed to derive inputs: %v", err)
	}

	for _, v := range inputs.Variables {
		switch v.Name {
		case "Category":
			if v.VariableType != string(FeatureCategory) {
				t.Errorf("expected CATEGORY, got %s", v.VariableType)
			}
			if v.DataType != domain.DataTypeString {
				t.Errorf("expected STRING data type, got %s", v.DataType)
			}
		case "Value":
			if v.VariableType != string(FeatureNumeric) {
				t.Errorf("expected NUMERIC, got %s", v.VariableType)
			}
			if v.DataType != domain.DataTypeFloat {
				t.Errorf("expected FLOAT data type, got %s", v.DataType)
			}
		}
		if v.DefaultValue != "unknown" {
			t.Errorf("variable %s: expected default %q, got %q", v.Name, "unknown", v.DefaultValue)
		}
	}
}

func TestNonBinaryLabelFailsDerivation(t *testing.T) {
	tbl, err := dataset.New(
		dataset.Col("Category", "A", "B", "C"),
		dataset.Col("EVENT_LABEL", "legit", "fraud", "other"),
		dataset.Col("EVENT_TIMESTAMP", "t1", "t2", "t3"),
	)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	_, err = newProfiler().Inputs(tbl, Options{})
	if !errors.Is(err, ErrNonBinaryLabel) {
		t.Errorf("expected ErrNonBinaryLabel, got %v", err)
	}
}

func TestFilterWarningsKeepsOnlyFlaggedColumns(t *testing.T) {
	// Value carries the low-cardinality warning, Category is clean.
	tbl, err := dataset.New(
		dataset.Col("Category", "a", "a", "b", "b", "c", "c", "d", "d", "e", "e"),
		dataset.Col("Value", 1, 1, 1, 1, 1, 1, 1, 1, 1, 1),
		dataset.Col("EVENT_LABEL", "fraud", "legit", "legit", "legit", "legit", "legit", "legit", "legit", "legit", "legit"),
		dataset.Col("EVENT_TIMESTAMP", "t", "t", "t", "t", "t", "t", "t", "t", "t", "t"),
	)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	inputs, err := newProfiler().Inputs(tbl, Options{FilterWarnings: true})
	if err != nil {
		t.Fatalf("failed to derive inputs: %v", err)
	}

	if len(inputs.Schema.ModelVariables) != 1 || inputs.Schema.ModelVariables[0] != "Value" {
		t.Errorf("expected model variables [Value], got %v", inputs.Schema.ModelVariables)
	}
	if len(inputs.Variables) != 1 || inputs.Variables[0].Name != "Value" {
		t.Errorf("expected variables [Value], got %v", inputs.Variables)
	}
}

func TestCustomColumnNames(t *testing.T) {
	tbl, err := dataset.New(
		dataset.Col("amount", 10, 20),
		dataset.Col("outcome", "good", "bad"),
		dataset.Col("ts", "t1", "t2"),
	)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	opts := Options{LabelColumn: "outcome", TimestampColumn: "ts"}
	profiles, err := newProfiler().SummaryStats(tbl, opts)
	if err != nil {
		t.Fatalf("failed to compute stats: %v", err)
	}

	if got := findProfile(t, profiles, "outcome").FeatureType; got != FeatureTarget {
		t.Errorf("expected TARGET for outcome, got %s", got)
	}
	if got := findProfile(t, profiles, "ts").FeatureType; got != FeatureTimestamp {
		t.Errorf("expected EVENT_TIMESTAMP for ts, got %s", got)
	}
}
