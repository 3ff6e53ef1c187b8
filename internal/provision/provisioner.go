// Package provision sequences remote fraud-detection API calls:
// idempotent resource creation, the one-shot project setup workflow,
// model training and activation, detector deployment, and prediction
// passthroughs. Every call is journaled with the status it resolved
// with.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/profiler"
	"github.com/opensource-finance/peregrine/internal/rules"
)

const (
	// defaultListTTL bounds how long a fetched name list may serve
	// idempotency checks before a fresh fetch.
	defaultListTTL = 30 * time.Second

	// defaultPollInterval is the wait between training status polls.
	defaultPollInterval = 60 * time.Second
)

// Provisioner orchestrates remote resource management for one project.
type Provisioner struct {
	client domain.DetectorAPI
	cache  domain.Cache
	repo   domain.Repository
	bus    domain.EventBus
	linter *rules.Linter
	logger *slog.Logger

	project      domain.ProjectConfig
	listTTL      time.Duration
	pollInterval time.Duration
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithListTTL overrides the name-list cache TTL.
func WithListTTL(ttl time.Duration) Option {
	return func(p *Provisioner) { p.listTTL = ttl }
}

// WithPollInterval overrides the training poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provisioner) { p.pollInterval = d }
}

// New creates a Provisioner for the configured project.
func New(client domain.DetectorAPI, cache domain.Cache, repo domain.Repository, bus domain.EventBus, project domain.ProjectConfig, logger *slog.Logger, opts ...Option) *Provisioner {
	p := &Provisioner{
		client:       client,
		cache:        cache,
		repo:         repo,
		bus:          bus,
		linter:       rules.NewLinter(),
		logger:       logger.With("component", "provisioner", "project", project.Name),
		project:      project,
		listTTL:      defaultListTTL,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// existingNames returns the remote resource names for a kind, served
// from the short-lived cache when fresh.
func (p *Provisioner) existingNames(ctx context.Context, kind domain.ResourceKind) ([]string, error) {
	if names, err := p.cache.GetNames(ctx, p.project.Name, kind); err == nil && names != nil {
		return names, nil
	}

	names, err := p.fetchNames(ctx, kind)
	if err != nil {
		return nil, err
	}

	if err := p.cache.SetNames(ctx, p.project.Name, kind, names, p.listTTL); err != nil {
		p.logger.Warn("failed to cache name list", "kind", kind, "error", err)
	}
	return names, nil
}

func (p *Provisioner) fetchNames(ctx context.Context, kind domain.ResourceKind) ([]string, error) {
	switch kind {
	case domain.KindEntityType:
		list, err := p.client.GetEntityTypes(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.EntityTypes))
		for _, et := range list.EntityTypes {
			names = append(names, et.Name)
		}
		return names, nil

	case domain.KindEventType:
		list, err := p.client.GetEventTypes(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.EventTypes))
		for _, et := range list.EventTypes {
			names = append(names, et.Name)
		}
		return names, nil

	case domain.KindVariable:
		list, err := p.client.GetVariables(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.Variables))
		for _, v := range list.Variables {
			names = append(names, v.Name)
		}
		return names, nil

	case domain.KindLabel:
		list, err := p.client.GetLabels(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.Labels))
		for _, l := range list.Labels {
			names = append(names, l.Name)
		}
		return names, nil

	case domain.KindModel:
		list, err := p.client.GetModels(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.Models))
		for _, m := range list.Models {
			names = append(names, m.ModelID)
		}
		return names, nil

	case domain.KindOutcome:
		list, err := p.client.GetOutcomes(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.Outcomes))
		for _, o := range list.Outcomes {
			names = append(names, o.Name)
		}
		return names, nil

	default:
		return nil, fmt.Errorf("no name list for kind %s", kind)
	}
}

// invalidate drops the cached name list for a kind after a mutation.
func (p *Provisioner) invalidate(ctx context.Context, kind domain.ResourceKind) {
	if err := p.cache.DeleteNames(ctx, p.project.Name, kind); err != nil {
		p.logger.Warn("failed to invalidate name list", "kind", kind, "error", err)
	}
}

// record journals one call and announces it on the bus. Bookkeeping
// failures are logged, not propagated: they must not abort
// orchestration.
func (p *Provisioner) record(ctx context.Context, kind domain.ResourceKind, name, action string, status domain.OpStatus) {
	op := &domain.ProvisionOp{
		ID:        uuid.New().String(),
		Project:   p.project.Name,
		Kind:      kind,
		Name:      name,
		Action:    action,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.repo.SaveOp(ctx, op); err != nil {
		p.logger.Warn("failed to journal operation", "kind", kind, "name", name, "error", err)
	}

	if status.Skipped {
		return
	}
	topic := domain.TopicResourceCreated
	if action == domain.ActionDelete {
		topic = domain.TopicResourceDeleted
	}
	payload := fmt.Sprintf(`{"kind":%q,"name":%q,"status":%q}`, kind, name, status)
	if err := p.bus.Publish(ctx, p.project.Name, topic, []byte(payload)); err != nil {
		p.logger.Warn("failed to publish resource event", "topic", topic, "error", err)
	}
}

// create runs the idempotent create protocol for one named resource:
// skip with a recorded "skipped" status when the name already exists,
// otherwise issue the remote call and record its status code.
func (p *Provisioner) create(ctx context.Context, kind domain.ResourceKind, name string, call func(context.Context) (*domain.OpResponse, error)) (domain.OpStatus, error) {
	existing, err := p.existingNames(ctx, kind)
	if err != nil {
		return domain.OpStatus{}, fmt.Errorf("list %s: %w", kind, err)
	}
	for _, n := range existing {
		if n == name {
			p.logger.Info("resource exists, skipping", "kind", kind, "name", name)
			p.record(ctx, kind, name, domain.ActionCreate, domain.Skipped)
			return domain.Skipped, nil
		}
	}

	resp, err := call(ctx)
	if err != nil {
		return domain.OpStatus{}, fmt.Errorf("create %s %s: %w", kind, name, err)
	}

	status := domain.StatusOf(resp.HTTPStatus)
	p.invalidate(ctx, kind)
	p.record(ctx, kind, name, domain.ActionCreate, status)
	p.logger.Info("resource created", "kind", kind, "name", name, "status", status)
	return status, nil
}

// remove issues a remote delete and records its status code.
func (p *Provisioner) remove(ctx context.Context, kind domain.ResourceKind, name string, call func(context.Context) (*domain.OpResponse, error)) (domain.OpStatus, error) {
	resp, err := call(ctx)
	if err != nil {
		return domain.OpStatus{}, fmt.Errorf("delete %s %s: %w", kind, name, err)
	}

	status := domain.StatusOf(resp.HTTPStatus)
	p.invalidate(ctx, kind)
	p.record(ctx, kind, name, domain.ActionDelete, status)
	p.logger.Info("resource deleted", "kind", kind, "name", name, "status", status)
	return status, nil
}

// CreateEntityType idempotently creates one entity type.
func (p *Provisioner) CreateEntityType(ctx context.Context, name string) (domain.StatusMap, error) {
	status, err := p.create(ctx, domain.KindEntityType, name, func(ctx context.Context) (*domain.OpResponse, error) {
		return p.client.PutEntityType(ctx, &domain.EntityType{Name: name})
	})
	if err != nil {
		return nil, err
	}
	return domain.StatusMap{name: status}, nil
}

// CreateLabels idempotently creates each label in order. The first
// remote failure aborts with the statuses collected so far discarded.
func (p *Provisioner) CreateLabels(ctx context.Context, labels []domain.Label) (domain.StatusMap, error) {
	statuses := make(domain.StatusMap, len(labels))
	for _, label := range labels {
		label := label
		status, err := p.create(ctx, domain.KindLabel, label.Name, func(ctx context.Context) (*domain.OpResponse, error) {
			return p.client.PutLabel(ctx, &label)
		})
		if err != nil {
			return nil, err
		}
		statuses[label.Name] = status
	}
	return statuses, nil
}

// CreateVariables idempotently creates each variable in order.
func (p *Provisioner) CreateVariables(ctx context.Context, variables []domain.Variable) (domain.StatusMap, error) {
	statuses := make(domain.StatusMap, len(variables))
	for _, v := range variables {
		v := v
		status, err := p.create(ctx, domain.KindVariable, v.Name, func(ctx context.Context) (*domain.OpResponse, error) {
			return p.client.CreateVariable(ctx, &v)
		})
		if err != nil {
			return nil, err
		}
		statuses[v.Name] = status
	}
	return statuses, nil
}

// CreateEventType idempotently creates one event type.
func (p *Provisioner) CreateEventType(ctx context.Context, et *domain.EventType) (domain.StatusMap, error) {
	status, err := p.create(ctx, domain.KindEventType, et.Name, func(ctx context.Context) (*domain.OpResponse, error) {
		return p.client.PutEventType(ctx, et)
	})
	if err != nil {
		return nil, err
	}
	return domain.StatusMap{et.Name: status}, nil
}

// CreateModel idempotently creates the project model.
func (p *Provisioner) CreateModel(ctx context.Context) (domain.StatusMap, error) {
	model := &domain.Model{
		ModelID:       p.project.ModelName,
		ModelType:     p.project.ModelType,
		EventTypeName: p.project.EventType,
	}
	status, err := p.create(ctx, domain.KindModel, model.ModelID, func(ctx context.Context) (*domain.OpResponse, error) {
		return p.client.CreateModel(ctx, model)
	})
	if err != nil {
		return nil, err
	}
	return domain.StatusMap{model.ModelID: status}, nil
}

// CreateOutcomes idempotently creates each outcome in order.
func (p *Provisioner) CreateOutcomes(ctx context.Context, outcomes []domain.Outcome) (domain.StatusMap, error) {
	statuses := make(domain.StatusMap, len(outcomes))
	for _, o := range outcomes {
		o := o
		status, err := p.create(ctx, domain.KindOutcome, o.Name, func(ctx context.Context) (*domain.OpResponse, error) {
			return p.client.PutOutcome(ctx, &o)
		})
		if err != nil {
			return nil, err
		}
		statuses[o.Name] = status
	}
	return statuses, nil
}

// CreateRules lints each rule locally, then idempotently creates the
// ones whose IDs are not already present on the detector.
func (p *Provisioner) CreateRules(ctx context.Context, ruleDefs []domain.Rule) (domain.StatusMap, error) {
	for i := range ruleDefs {
		if err := p.linter.Lint(&ruleDefs[i]); err != nil {
			return nil, err
		}
	}

	list, err := p.client.GetRules(ctx, p.project.DetectorName)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	existing := make(map[string]struct{}, len(list.RuleDetails))
	for _, r := range list.RuleDetails {
		existing[r.RuleID] = struct{}{}
	}

	statuses := make(domain.StatusMap, len(ruleDefs))
	for i := range ruleDefs {
		r := ruleDefs[i]
		if r.DetectorID == "" {
			r.DetectorID = p.project.DetectorName
		}
		if r.Language == "" {
			r.Language = domain.RuleLanguage
		}

		if _, ok := existing[r.RuleID]; ok {
			p.logger.Info("rule exists, skipping", "rule", r.RuleID)
			p.record(ctx, domain.KindRule, r.RuleID, domain.ActionCreate, domain.Skipped)
			statuses[r.RuleID] = domain.Skipped
			continue
		}

		resp, err := p.client.CreateRule(ctx, &r)
		if err != nil {
			return nil, fmt.Errorf("create rule %s: %w", r.RuleID, err)
		}
		status := domain.StatusOf(resp.HTTPStatus)
		p.record(ctx, domain.KindRule, r.RuleID, domain.ActionCreate, status)
		statuses[r.RuleID] = status
	}
	return statuses, nil
}

// DeleteRule deletes one rule version from the project detector. The
// version defaults to "1", matching the version CreateRules assigns.
func (p *Provisioner) DeleteRule(ctx context.Context, ruleID, ruleVersion string) (domain.StatusMap, error) {
	if ruleVersion == "" {
		ruleVersion = "1"
	}
	ref := &domain.RuleRef{
		RuleID:      ruleID,
		DetectorID:  p.project.DetectorName,
		RuleVersion: ruleVersion,
	}
	resp, err := p.client.DeleteRule(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("delete rule %s: %w", ruleID, err)
	}

	status := domain.StatusOf(resp.HTTPStatus)
	p.record(ctx, domain.KindRule, ruleID, domain.ActionDelete, status)
	p.logger.Info("rule deleted", "rule", ruleID, "version", ruleVersion)
	return domain.StatusMap{ruleID: status}, nil
}

// DeleteEntityType deletes one entity type.
func (p *Provisioner) DeleteEntityType(ctx context.Context, name string) (domain.StatusMap, error) {
	status, err := p.remove(ctx, domain.KindEntityType, name, func(ctx context.Context) (*domain.OpResponse, error) {
		return p.client.DeleteEntityType(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return domain.StatusMap{name: status}, nil
}

// DeleteEventType deletes one event type.
func (p *Provisioner) DeleteEventType(ctx context.Context, name string) (domain.StatusMap, error) {
	status, err := p.remove(ctx, domain.KindEventType, name, func(ctx context.Context) (*domain.OpResponse, error) {
		return p.client.DeleteEventType(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return domain.StatusMap{name: status}, nil
}

// DeleteVariable deletes one variable.
func (p *Provisioner) DeleteVariable(ctx context.Context, name string) (domain.StatusMap, error) {
	status, err := p.remove(ctx, domain.KindVariable, name, func(ctx context.Context) (*domain.OpResponse, error) {
		return p.client.DeleteVariable(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return domain.StatusMap{name: status}, nil
}

// DeleteLabel deletes one label.
func (p *Provisioner) DeleteLabel(ctx context.Context, name string) (domain.StatusMap, error) {
	status, err := p.remove(ctx, domain.KindLabel, name, func(ctx context.Context) (*domain.OpResponse, error) {
		return p.client.DeleteLabel(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return domain.StatusMap{name: status}, nil
}

// DeleteModel deletes the project model.
func (p *Provisioner) DeleteModel(ctx context.Context) (domain.StatusMap, error) {
	name := p.project.ModelName
	status, err := p.remove(ctx, domain.KindModel, name, func(ctx context.Context) (*domain.OpResponse, error) {
		return p.client.DeleteModel(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return domain.StatusMap{name: status}, nil
}

// DeleteOutcome deletes one outcome.
func (p *Provisioner) DeleteOutcome(ctx context.Context, name string) (domain.StatusMap, error) {
	status, err := p.remove(ctx, domain.KindOutcome, name, func(ctx context.Context) (*domain.OpResponse, error) {
		return p.client.DeleteOutcome(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return domain.StatusMap{name: status}, nil
}

// SetupProject runs the one-shot setup sequence from profiling
// inputs: entity type, labels, variables, event type, model. The first
// failure aborts the sequence; resources created before the failure
// stay in place and the caller retries after fixing the cause. Creates
// already present resolve as skipped, so a retry is safe.
func (p *Provisioner) SetupProject(ctx context.Context, inputs *profiler.Inputs) (domain.StatusMap, error) {
	statuses := make(domain.StatusMap)

	merge := func(m domain.StatusMap, err error) error {
		if err != nil {
			return err
		}
		for k, v := range m {
			statuses[k] = v
		}
		return nil
	}

	if err := merge(p.CreateEntityType(ctx, p.project.EntityType)); err != nil {
		return statuses, err
	}
	if err := merge(p.CreateLabels(ctx, inputs.Labels)); err != nil {
		return statuses, err
	}
	if err := merge(p.CreateVariables(ctx, inputs.Variables)); err != nil {
		return statuses, err
	}

	labelNames := make([]string, 0, len(inputs.Labels))
	for _, l := range inputs.Labels {
		labelNames = append(labelNames, l.Name)
	}
	variableNames := make([]string, 0, len(inputs.Variables))
	for _, v := range inputs.Variables {
		variableNames = append(variableNames, v.Name)
	}

	eventType := &domain.EventType{
		Name:           p.project.EventType,
		EventVariables: variableNames,
		Labels:         labelNames,
		EntityTypes:    []string{p.project.EntityType},
	}
	if err := merge(p.CreateEventType(ctx, eventType)); err != nil {
		return statuses, err
	}
	if err := merge(p.CreateModel(ctx)); err != nil {
		return statuses, err
	}

	p.logger.Info("project setup complete", "resources", len(statuses))
	return statuses, nil
}

// Journal returns the provisioning journal for this project.
func (p *Provisioner) Journal(ctx context.Context) ([]*domain.ProvisionOp, error) {
	return p.repo.ListOps(ctx, p.project.Name)
}
