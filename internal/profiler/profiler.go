// Package profiler derives summary statistics, feature typings, and
// training inputs from a tabular dataset. The output feeds the
// provisioner: variable definitions, label definitions, and the
// training data schema all come from here.
package profiler

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/opensource-finance/peregrine/internal/dataset"
	"github.com/opensource-finance/peregrine/internal/domain"
)

// FeatureType classifies a column for modelling purposes.
type FeatureType string

const (
	FeatureUnknown   FeatureType = "UNKNOWN"
	FeatureCategory  FeatureType = "CATEGORY"
	FeatureNumeric   FeatureType = "NUMERIC"
	FeatureIPAddress FeatureType = "IP_ADDRESS"
	FeatureEmail     FeatureType = "EMAIL_ADDRESS"
	FeatureTarget    FeatureType = "TARGET"
	FeatureTimestamp FeatureType = "EVENT_TIMESTAMP"
)

// Screening warnings, from mildest to exclusion. Each column carries
// exactly one.
const (
	WarnNone           = "NO WARNING"
	WarnNonBinaryLabel = "LABEL WARNING, NON-BINARY EVENT LABEL"
	WarnHighUnique     = "EXCLUDE, GT 90% UNIQUE"
	WarnSomeMissing    = "NULL WARNING, GT 20% MISSING"
	WarnMostlyMissing  = "EXCLUDE, GT 50% MISSING"
	WarnLowCardinality = "LIKELY CATEGORICAL, NUMERIC w. LOW CARDINALITY"
)

var (
	// ErrMissingColumns is returned when the label or timestamp column
	// is absent from the dataset.
	ErrMissingColumns = errors.New("profiler: required column missing")

	// ErrNonBinaryLabel is returned when the label column holds more
	// than two distinct values.
	ErrNonBinaryLabel = errors.New("profiler: label column is not binary")
)

// Options selects the label and timestamp columns and the warning
// filter for schema derivation.
type Options struct {
	LabelColumn     string
	TimestampColumn string

	// FilterWarnings restricts schema derivation to columns that
	// carry a screening warning.
	FilterWarnings bool
}

func (o *Options) defaults() {
	if o.LabelColumn == "" {
		o.LabelColumn = "EVENT_LABEL"
	}
	if o.TimestampColumn == "" {
		o.TimestampColumn = "EVENT_TIMESTAMP"
	}
}

// ColumnProfile is one row of the summary stats table.
type ColumnProfile struct {
	Name        string        `json:"featureName"`
	DType       dataset.DType `json:"dtype"`
	Count       int           `json:"count"`
	NUnique     int           `json:"nunique"`
	Null        int           `json:"null"`
	NotNull     int           `json:"notNull"`
	NullPct     float64       `json:"nullPct"`
	NUniquePct  float64       `json:"nuniquePct"`
	FeatureType FeatureType   `json:"featureType"`
	Warning     string        `json:"featureWarning"`
}

// Inputs bundles everything the provisioner needs to register a model.
type Inputs struct {
	Schema    domain.TrainingDataSchema `json:"trainingDataSchema"`
	Variables []domain.Variable         `json:"eventVariables"`
	Labels    []domain.Label            `json:"eventLabels"`
}

// Profiler computes summary statistics and training inputs.
type Profiler struct {
	logger *slog.Logger
}

// New creates a Profiler.
func New(logger *slog.Logger) *Profiler {
	return &Profiler{logger: logger.With("component", "profiler")}
}

// SummaryStats computes per-column statistics, feature typings, and
// screening warnings for the table, in column declaration order.
func (p *Profiler) SummaryStats(t *dataset.Table, opts Options) ([]ColumnProfile, error) {
	opts.defaults()
	if err := p.checkColumns(t, opts); err != nil {
		return nil, err
	}
	profiles := p.stats(t, opts)
	p.mapFeatureTypes(profiles, opts)
	p.screenForWarnings(profiles, opts)
	return profiles, nil
}

// Inputs derives the training data schema, event variables, and event
// labels from the table.
func (p *Profiler) Inputs(t *dataset.Table, opts Options) (*Inputs, error) {
	opts.defaults()
	profiles, err := p.SummaryStats(t, opts)
	if err != nil {
		return nil, err
	}
	if opts.FilterWarnings {
		var kept []ColumnProfile
		for _, cp := range profiles {
			if cp.Warning != WarnNone {
				kept = append(kept, cp)
			}
		}
		profiles = kept
	}

	labelCol, _ := t.Column(opts.LabelColumn)
	labels, err := p.labels(labelCol)
	if err != nil {
		return nil, err
	}

	return &Inputs{
		Schema:    p.schema(profiles, labelCol),
		Variables: p.variables(profiles, opts),
		Labels:    labels,
	}, nil
}

func (p *Profiler) checkColumns(t *dataset.Table, opts Options) error {
	missing := false
	for _, name := range []string{opts.LabelColumn, opts.TimestampColumn} {
		if !t.HasColumn(name) {
			p.logger.Warn("column not found in dataset",
				"column", name,
				"columns", t.ColumnNames())
			missing = true
		}
	}
	if missing {
		return fmt.Errorf("%w: need %s and %s", ErrMissingColumns, opts.LabelColumn, opts.TimestampColumn)
	}
	return nil
}

// stats computes the count/nunique/null block. The label column is
// treated as a string column regardless of its stored dtype.
func (p *Profiler) stats(t *dataset.Table, opts Options) []ColumnProfile {
	rowcnt := t.RowCount()
	profiles := make([]ColumnProfile, 0, len(t.Columns()))
	for _, col := range t.Columns() {
		dtype := col.DType
		if col.Name == opts.LabelColumn {
			dtype = dataset.DTypeString
		}
		count := col.NonNullCount()
		nulls := rowcnt - count
		cp := ColumnProfile{
			Name:    col.Name,
			DType:   dtype,
			Count:   count,
			NUnique: len(col.Distinct()),
			Null:    nulls,
			NotNull: rowcnt - nulls,
		}
		if rowcnt > 0 {
			cp.NullPct = round4(float64(cp.Null) / float64(rowcnt))
			cp.NUniquePct = round4(float64(cp.NUnique) / float64(rowcnt))
		}
		profiles = append(profiles, cp)
	}
	return profiles
}

// typeRule pairs a predicate with the feature type it assigns. Rules
// are evaluated in list order and every matching rule overwrites the
// previous assignment, so a rule's position encodes its precedence: a
// string column named ip_address ends up IP_ADDRESS, not CATEGORY.
type typeRule struct {
	outcome FeatureType
	match   func(cp *ColumnProfile) bool
}

func typeRules(opts Options) []typeRule {
	return []typeRule{
		{FeatureCategory, func(cp *ColumnProfile) bool {
			return cp.DType == dataset.DTypeString
		}},
		{FeatureNumeric, func(cp *ColumnProfile) bool {
			return cp.DType == dataset.DTypeInt || cp.DType == dataset.DTypeFloat
		}},
		{FeatureIPAddress, func(cp *ColumnProfile) bool {
			return containsAny(cp.Name, "ipaddress", "ip_address", "ipaddr")
		}},
		{FeatureEmail, func(cp *ColumnProfile) bool {
			return containsAny(cp.Name, "email", "email_address", "emailaddr")
		}},
		{FeatureTarget, func(cp *ColumnProfile) bool {
			return cp.Name == opts.LabelColumn
		}},
		{FeatureTimestamp, func(cp *ColumnProfile) bool {
			return cp.Name == opts.TimestampColumn
		}},
	}
}

func (p *Profiler) mapFeatureTypes(profiles []ColumnProfile, opts Options) {
	rules := typeRules(opts)
	for i := range profiles {
		cp := &profiles[i]
		cp.FeatureType = FeatureUnknown
		for _, r := range rules {
			if r.match(cp) {
				cp.FeatureType = r.outcome
			}
		}
	}
}

// warnRule is the warning counterpart of typeRule: list order encodes
// precedence, last match wins.
type warnRule struct {
	outcome string
	match   func(cp *ColumnProfile) bool
}

func warnRules(opts Options) []warnRule {
	return []warnRule{
		{WarnNonBinaryLabel, func(cp *ColumnProfile) bool {
			return cp.NUnique != 2 && cp.Name == opts.LabelColumn
		}},
		{WarnHighUnique, func(cp *ColumnProfile) bool {
			return cp.NUniquePct > 0.9 && cp.FeatureType == FeatureCategory
		}},
		{WarnSomeMissing, func(cp *ColumnProfile) bool {
			return cp.NullPct > 0.2 && cp.NullPct <= 0.5
		}},
		{WarnMostlyMissing, func(cp *ColumnProfile) bool {
			return cp.NullPct > 0.5
		}},
		{WarnLowCardinality, func(cp *ColumnProfile) bool {
			return (cp.DType == dataset.DTypeInt || cp.DType == dataset.DTypeFloat) && cp.NUniquePct < 0.2
		}},
	}
}

func (p *Profiler) screenForWarnings(profiles []ColumnProfile, opts Options) {
	rules := warnRules(opts)
	for i := range profiles {
		cp := &profiles[i]
		cp.Warning = WarnNone
		for _, r := range rules {
			if r.match(cp) {
				cp.Warning = r.outcome
			}
		}
	}
}

// labels returns the distinct label values in first-occurrence order.
// More than two distinct values is an error: the caller gets no labels
// and must fix the data.
func (p *Profiler) labels(col *dataset.Column) ([]domain.Label, error) {
	distinct := col.Distinct()
	if len(distinct) > 2 {
		p.logger.Error("label column has more than 2 distinct values",
			"column", col.Name,
			"distinct", len(distinct))
		return nil, fmt.Errorf("%w: %s has %d distinct values", ErrNonBinaryLabel, col.Name, len(distinct))
	}
	labels := make([]domain.Label, 0, len(distinct))
	for _, v := range distinct {
		labels = append(labels, domain.Label{Name: v})
	}
	return labels, nil
}

// variables builds variable definitions for every profiled column
// except the label and timestamp columns. Numeric columns are typed
// FLOAT; the default value is the string "unknown" for every variable,
// numeric ones included, matching what the remote service stores.
func (p *Profiler) variables(profiles []ColumnProfile, opts Options) []domain.Variable {
	var variables []domain.Variable
	for _, cp := range profiles {
		if cp.Name == opts.LabelColumn || cp.Name == opts.TimestampColumn {
			continue
		}
		dataType := domain.DataTypeString
		if cp.FeatureType == FeatureNumeric {
			dataType = domain.DataTypeFloat
		}
		variables = append(variables, domain.Variable{
			Name:         cp.Name,
			VariableType: string(cp.FeatureType),
			DataType:     dataType,
			DefaultValue: "unknown",
		})
	}
	return variables
}

// schema builds the training data schema. FRAUD maps to the minority
// label value, LEGIT to the majority; first occurrence wins ties.
func (p *Profiler) schema(profiles []ColumnProfile, labelCol *dataset.Column) domain.TrainingDataSchema {
	var modelVars []string
	for _, cp := range profiles {
		switch cp.FeatureType {
		case FeatureIPAddress, FeatureEmail, FeatureCategory, FeatureNumeric:
			modelVars = append(modelVars, cp.Name)
		}
	}

	counts := labelCol.ValueCounts()
	var minority, majority string
	for _, v := range labelCol.Distinct() {
		if minority == "" || counts[v] < counts[minority] {
			minority = v
		}
		if majority == "" || counts[v] > counts[majority] {
			majority = v
		}
	}

	schema := domain.TrainingDataSchema{ModelVariables: modelVars}
	schema.LabelSchema.LabelMapper = map[string][]string{
		domain.LabelMapperFraud: {minority},
		domain.LabelMapperLegit: {majority},
	}
	return schema
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
