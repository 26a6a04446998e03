package webhosting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/hostdesk/internal/clock"
	"github.com/kuitang/hostdesk/internal/db"
	"github.com/kuitang/hostdesk/internal/errs"
	"github.com/kuitang/hostdesk/internal/obs"
)

var (
	ErrPlanNotFound = errs.New(errs.NotFound, "plan not found")
	ErrPlanExists   = errs.New(errs.FailedPrecondition, "a plan with this name already exists")
	ErrInvalidPlan  = errs.New(errs.InvalidArgument, "invalid plan")
)

// Plan is a named webhosting offer.
type Plan struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Constraints  Constraints  `json:"constraints"`
	Capabilities Capabilities `json:"capabilities"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// PlanService manages plans in the database.
type PlanService struct {
	db    *db.DB
	clock clock.Clock
}

// NewPlanService creates a plan service.
func NewPlanService(database *db.DB) *PlanService {
	return &PlanService{db: database, clock: clock.Real{}}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *PlanService) SetClock(c clock.Clock) {
	s.clock = c
}

// Create stores a new plan and returns it with its generated id.
func (s *PlanService) Create(ctx context.Context, name string, c Constraints, caps Capabilities) (Plan, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Plan{}, fmt.Errorf("%w: name is required", ErrInvalidPlan)
	}
	if err := c.Validate(); err != nil {
		return Plan{}, err
	}
	if err := caps.Validate(); err != nil {
		return Plan{}, err
	}

	constraintsJSON, capsJSON, err := encodePlan(c, caps)
	if err != nil {
		return Plan{}, err
	}
	now := s.clock.Now().UTC()
	p := Plan{
		ID:           uuid.NewString(),
		Name:         name,
		Constraints:  c,
		Capabilities: caps,
		CreatedAt:    now.Truncate(time.Millisecond),
		UpdatedAt:    now.Truncate(time.Millisecond),
	}

	err = s.db.Queries().CreatePlan(ctx, db.CreatePlanParams{
		ID:           p.ID,
		Name:         p.Name,
		Constraints:  constraintsJSON,
		Capabilities: capsJSON,
		CreatedAt:    now.UnixMilli(),
	})
	if db.IsUniqueViolation(err) {
		return Plan{}, ErrPlanExists
	}
	if err != nil {
		return Plan{}, fmt.Errorf("create plan: %w", err)
	}

	obs.From(ctx).With("pkg", "webhosting").Info("plan_created", "plan_id", p.ID, "name", p.Name)
	return p, nil
}

// Get returns the plan with id.
func (s *PlanService) Get(ctx context.Context, id string) (Plan, error) {
	return getPlan(ctx, s.db.Queries(), id)
}

// List returns all plans ordered by name.
func (s *PlanService) List(ctx context.Context) ([]Plan, error) {
	rows, err := s.db.Queries().ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	plans := make([]Plan, 0, len(rows))
	for _, row := range rows {
		p, err := decodePlan(row)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// UpdateConstraints replaces the constraints of a plan and returns the
// updated plan with the list of changed fields. Nothing is written when the
// constraints are equal.
func (s *PlanService) UpdateConstraints(ctx context.Context, id string, c Constraints) (Plan, []Change, error) {
	if err := c.Validate(); err != nil {
		return Plan{}, nil, err
	}

	var (
		updated Plan
		changes []Change
	)
	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		current, err := getPlan(ctx, q, id)
		if err != nil {
			return err
		}
		changes = current.Constraints.Changes(c)
		updated = current
		if len(changes) == 0 {
			return nil
		}
		updated.Constraints = c
		return s.write(ctx, q, &updated)
	})
	if err != nil {
		return Plan{}, nil, err
	}

	if len(changes) > 0 {
		fields := make([]string, len(changes))
		for i, ch := range changes {
			fields[i] = ch.Field
		}
		obs.From(ctx).With("pkg", "webhosting").Info("plan_constraints_changed", "plan_id", id, "fields", fields)
	}
	return updated, changes, nil
}

// UpdateCapabilities replaces the capability set of a plan and reports the diff.
func (s *PlanService) UpdateCapabilities(ctx context.Context, id string, caps Capabilities) (Plan, CapabilityDiff, error) {
	if err := caps.Validate(); err != nil {
		return Plan{}, CapabilityDiff{}, err
	}

	var (
		updated Plan
		diff    CapabilityDiff
	)
	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		current, err := getPlan(ctx, q, id)
		if err != nil {
			return err
		}
		diff = current.Capabilities.Diff(caps)
		updated = current
		if diff.Empty() {
			return nil
		}
		updated.Capabilities = caps
		return s.write(ctx, q, &updated)
	})
	if err != nil {
		return Plan{}, CapabilityDiff{}, err
	}

	if !diff.Empty() {
		obs.From(ctx).With("pkg", "webhosting").Info("plan_capabilities_changed",
			"plan_id", id, "added", diff.Added, "removed", diff.Removed, "changed", diff.Changed)
	}
	return updated, diff, nil
}

// Update replaces constraints and capabilities of a plan in one transaction,
// so either both are stored or neither is.
func (s *PlanService) Update(ctx context.Context, id string, c Constraints, caps Capabilities) (Plan, []Change, CapabilityDiff, error) {
	if err := c.Validate(); err != nil {
		return Plan{}, nil, CapabilityDiff{}, err
	}
	if err := caps.Validate(); err != nil {
		return Plan{}, nil, CapabilityDiff{}, err
	}

	var (
		updated Plan
		changes []Change
		diff    CapabilityDiff
	)
	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		current, err := getPlan(ctx, q, id)
		if err != nil {
			return err
		}
		changes = current.Constraints.Changes(c)
		diff = current.Capabilities.Diff(caps)
		updated = current
		if len(changes) == 0 && diff.Empty() {
			return nil
		}
		updated.Constraints = c
		updated.Capabilities = caps
		return s.write(ctx, q, &updated)
	})
	if err != nil {
		return Plan{}, nil, CapabilityDiff{}, err
	}

	if len(changes) > 0 || !diff.Empty() {
		obs.From(ctx).With("pkg", "webhosting").Info("plan_updated",
			"plan_id", id, "constraint_changes", len(changes),
			"added", diff.Added, "removed", diff.Removed, "changed", diff.Changed)
	}
	return updated, changes, diff, nil
}

func (s *PlanService) write(ctx context.Context, q *db.Queries, p *Plan) error {
	constraintsJSON, capsJSON, err := encodePlan(p.Constraints, p.Capabilities)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	n, err := q.UpdatePlan(ctx, db.UpdatePlanParams{
		Constraints:  constraintsJSON,
		Capabilities: capsJSON,
		UpdatedAt:    now.UnixMilli(),
		ID:           p.ID,
	})
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if n == 0 {
		return ErrPlanNotFound
	}
	p.UpdatedAt = now.Truncate(time.Millisecond)
	return nil
}

func getPlan(ctx context.Context, q *db.Queries, id string) (Plan, error) {
	row, err := q.GetPlan(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Plan{}, ErrPlanNotFound
	}
	if err != nil {
		return Plan{}, fmt.Errorf("get plan: %w", err)
	}
	return decodePlan(row)
}

func encodePlan(c Constraints, caps Capabilities) (string, string, error) {
	constraintsJSON, err := json.Marshal(c)
	if err != nil {
		return "", "", fmt.Errorf("encode constraints: %w", err)
	}
	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return "", "", fmt.Errorf("encode capabilities: %w", err)
	}
	return string(constraintsJSON), string(capsJSON), nil
}

func decodePlan(row db.Plan) (Plan, error) {
	p := Plan{
		ID:        row.ID,
		Name:      row.Name,
		CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(row.UpdatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(row.Constraints), &p.Constraints); err != nil {
		return Plan{}, fmt.Errorf("decode constraints of plan %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.Capabilities), &p.Capabilities); err != nil {
		return Plan{}, fmt.Errorf("decode capabilities of plan %s: %w", row.ID, err)
	}
	return p, nil
}
