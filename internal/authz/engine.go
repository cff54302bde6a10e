package authz

import (
	"context"

	"go.uber.org/zap"

	appErrors "github.com/edukita/classtrack-api/pkg/errors"
)

// rule is a single ALLOW predicate. Returning (false, nil) passes control
// to the next rule in the chain; an error aborts the evaluation and never
// grants.
type rule struct {
	name  string
	check func(ctx context.Context, ev *evaluation) (bool, error)
}

// Engine evaluates the access rules for every entity operation.
type Engine struct {
	rel      Relations
	policies map[Kind]map[Action][]rule
	logger   *zap.Logger
}

// NewEngine wires the engine with its relation lookups.
func NewEngine(rel Relations, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{rel: rel, policies: defaultPolicies(), logger: logger}
}

// Authorize decides ALLOW or DENY for one tuple. Rules are evaluated in
// order and the first satisfied rule grants; when none matches the caller
// receives an opaque forbidden error that does not reveal which rule
// failed. A lookup failure surfaces as an internal error, never as ALLOW.
func (e *Engine) Authorize(ctx context.Context, actor Actor, action Action, res Resource) error {
	byAction, ok := e.policies[res.Kind]
	if !ok {
		return appErrors.ErrForbidden
	}
	rules, ok := byAction[action]
	if !ok || len(rules) == 0 {
		return appErrors.ErrForbidden
	}

	ev := newEvaluation(actor, action, res, e.rel)
	for _, r := range rules {
		allowed, err := r.check(ctx, ev)
		if err != nil {
			e.logger.Error("authorization lookup failed",
				zap.String("kind", string(res.Kind)),
				zap.String("action", string(action)),
				zap.String("rule", r.name),
				zap.Error(err),
			)
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "authorization check failed")
		}
		if allowed {
			e.logger.Debug("authorization allowed",
				zap.String("kind", string(res.Kind)),
				zap.String("action", string(action)),
				zap.String("rule", r.name),
				zap.String("actor_id", actor.ID),
				zap.String("actor_role", string(actor.Role)),
			)
			return nil
		}
	}

	e.logger.Debug("authorization denied",
		zap.String("kind", string(res.Kind)),
		zap.String("action", string(action)),
		zap.String("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)),
	)
	return appErrors.ErrForbidden
}
