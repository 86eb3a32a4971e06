// Package rules holds the routing rule table and turns one tick's
// telemetry, tank state and clock into a single heating decision.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/solarrouter/solarrouter/pkg/log"
	"github.com/solarrouter/solarrouter/pkg/types"
)

// ErrRuleNotFound is returned when toggling a rule name that is not in the
// table.
var ErrRuleNotFound = errors.New("rule not found")

// Engine holds the name-keyed rule table. It carries no per-tick state;
// every Decide call recomputes the decision from scratch. Engine is not
// safe for concurrent use, the router serializes access.
type Engine struct {
	rules   map[string]types.Rule
	nextSeq int64
}

// NewEngine returns an engine with an empty rule table. Call SeedDefaults
// or Restore to populate it.
func NewEngine() *Engine {
	return &Engine{
		rules:   make(map[string]types.Rule),
		nextSeq: 1,
	}
}

// SetRule validates and upserts a rule by name. On a rejected rule the
// table is left untouched. The rule is stamped with the next sequence
// number, which makes the most recently defined rule win priority ties.
func (e *Engine) SetRule(r types.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.Seq = e.nextSeq
	e.nextSeq++
	e.rules[r.Name] = r
	return nil
}

// EnableRule marks the named rule enabled.
func (e *Engine) EnableRule(name string) error {
	return e.setEnabled(name, true)
}

// DisableRule marks the named rule disabled. The rule stays in the table.
func (e *Engine) DisableRule(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	r, ok := e.rules[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrRuleNotFound, name)
	}
	r.Enabled = enabled
	e.rules[name] = r
	return nil
}

// RemoveRule deletes the named rule from the table.
func (e *Engine) RemoveRule(name string) error {
	if _, ok := e.rules[name]; !ok {
		return fmt.Errorf("%w: %q", ErrRuleNotFound, name)
	}
	delete(e.rules, name)
	return nil
}

// Rule returns the named rule.
func (e *Engine) Rule(name string) (types.Rule, bool) {
	r, ok := e.rules[name]
	return r, ok
}

// Rules returns all rules ordered by priority descending, ties by most
// recently defined first.
func (e *Engine) Rules() []types.Rule {
	out := make([]types.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

// Restore replaces the table with persisted rules, keeping their sequence
// numbers so tie-breaking survives restarts.
func (e *Engine) Restore(rules []types.Rule) {
	e.rules = make(map[string]types.Rule, len(rules))
	var maxSeq int64
	for _, r := range rules {
		e.rules[r.Name] = r
		if r.Seq > maxSeq {
			maxSeq = r.Seq
		}
	}
	e.nextSeq = maxSeq + 1
}

// Decide evaluates every enabled rule against the tick context and
// resolves conflicts by priority. Override precedence: an active
// force-heating window wins over everything, including auto mode being
// off; with auto mode off the engine abstains entirely; with no matching
// rule the instruction is None and the controller holds its last state.
func (e *Engine) Decide(ctx context.Context, evalCtx Context, overrides types.Overrides) types.HeatingDecision {
	decision := types.HeatingDecision{
		Timestamp:   evalCtx.Now,
		Instruction: types.InstructionNone,
		RuleName:    types.RuleNameNone,
	}

	if overrides.ForceActive(evalCtx.Now) {
		decision.Instruction = types.InstructionOn
		decision.Forced = true
		decision.Description = fmt.Sprintf("force heating until %s", overrides.ForceHeatingUntil.Format("15:04"))
		return decision
	}

	if !overrides.AutoModeEnabled {
		decision.Description = "auto mode disabled"
		return decision
	}

	var best *types.Rule
	for _, r := range e.Rules() {
		if !r.Enabled {
			continue
		}
		if r.Name == RuleOffpeakFallback && !overrides.OffpeakFallbackEnabled {
			continue
		}
		if !e.matches(r, evalCtx) {
			continue
		}
		log.Ctx(ctx).DebugContext(ctx, "rule matched",
			slog.String("rule", r.Name),
			slog.Int("priority", r.Priority),
			slog.String("action", string(r.Action)),
		)
		// Rules() is already ordered best-first, so the first match wins
		matched := r
		best = &matched
		break
	}

	if best == nil {
		return decision
	}

	decision.Instruction = best.Action.Instruction()
	decision.RuleName = best.Name
	decision.Description = best.Description
	return decision
}

func (e *Engine) matches(r types.Rule, evalCtx Context) bool {
	for _, c := range r.Conditions {
		if !EvaluateCondition(c, evalCtx) {
			return false
		}
	}
	return true
}
