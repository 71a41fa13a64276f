// Package plan diffs a template against recorded state and produces the
// ordered list of steps an apply will take.
package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/stackforge/stackforge/internal/graph"
	"github.com/stackforge/stackforge/internal/models"
	"github.com/stackforge/stackforge/internal/storage"
)

// Action is what an apply will do for one resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionNoop   Action = "noop"
)

// Step is one planned operation. Steps are ordered so dependencies come
// first.
type Step struct {
	Address string `json:"address"`
	Kind    string `json:"kind"`
	Action  Action `json:"action"`
	Reason  string `json:"reason,omitempty"`
}

// Plan is the full ordered set of steps for one deployment.
type Plan struct {
	Deployment string `json:"deployment"`
	Steps      []Step `json:"steps"`
}

// Changes returns the number of steps that are not no-ops.
func (p *Plan) Changes() int {
	n := 0
	for _, s := range p.Steps {
		if s.Action != ActionNoop {
			n++
		}
	}
	return n
}

// Compute orders the template's resources and marks each one create or noop.
// A resource plans as noop when a record exists and its desired-state hash is
// unchanged; there is no update calculus beyond whole-record replacement.
func Compute(ctx context.Context, t *models.Template, store storage.Store) (*Plan, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	ordered, err := graph.Order(t)
	if err != nil {
		return nil, err
	}

	p := &Plan{Deployment: t.Deployment}
	for _, res := range ordered {
		step := Step{
			Address: res.Address(),
			Kind:    string(res.Kind),
			Action:  ActionCreate,
		}
		rec, err := store.GetResource(ctx, t.Deployment, res.Address())
		switch {
		case errors.Is(err, storage.ErrNotFound):
			step.Reason = "not recorded"
		case err != nil:
			return nil, fmt.Errorf("read state for %s: %w", res.Address(), err)
		case rec.DesiredHash == models.DesiredHash(res.Spec):
			step.Action = ActionNoop
		default:
			step.Reason = "desired state changed"
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}
