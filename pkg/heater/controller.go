package heater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/solarrouter/solarrouter/pkg/events"
	"github.com/solarrouter/solarrouter/pkg/log"
	"github.com/solarrouter/solarrouter/pkg/rules"
	"github.com/solarrouter/solarrouter/pkg/tank"
	"github.com/solarrouter/solarrouter/pkg/types"
)

// Bounds on a force-heating request.
const (
	MinForceDuration = time.Minute
	MaxForceDuration = 480 * time.Minute
)

// ErrBadForceDuration is returned for a force-heating duration outside the
// allowed range.
var ErrBadForceDuration = fmt.Errorf("force duration must be between %s and %s", MinForceDuration, MaxForceDuration)

// ForceWindow validates a force-heating duration and returns the end of
// the resulting window.
func ForceWindow(now time.Time, d time.Duration) (time.Time, error) {
	if d < MinForceDuration || d > MaxForceDuration {
		return time.Time{}, ErrBadForceDuration
	}
	return now.Add(d), nil
}

// Mode reports who is in charge of the heater given the current overrides.
func Mode(o types.Overrides, now time.Time) types.HeatingMode {
	switch {
	case o.ForceActive(now):
		return types.HeatingModeForced
	case !o.AutoModeEnabled:
		return types.HeatingModeOff
	default:
		return types.HeatingModeAuto
	}
}

// Controller applies heating decisions to the relay. It holds the last
// commanded state so repeated identical decisions produce no relay
// traffic, no session counting and no events. Not safe for concurrent
// use, the router serializes calls.
type Controller struct {
	relay Relay
	tank  *tank.Model
	bus   events.Bus

	// MinRuntime is how long a rule-driven heating session must run
	// before a rule-driven stop is honored. Protects the element from
	// rapid cycling around a threshold. Forced stops bypass it.
	MinRuntime time.Duration

	heating    bool
	startedAt  time.Time
	activeRule string
}

// NewController returns a controller that believes the heater is off. Call
// Sync to adopt the relay's actual position after a restart.
func NewController(relay Relay, tk *tank.Model, bus events.Bus) *Controller {
	return &Controller{
		relay:      relay,
		tank:       tk,
		bus:        bus,
		activeRule: types.RuleNameNone,
	}
}

// Sync reads the relay and adopts its state without emitting events, so a
// restart mid-session does not double-count or fire phantom transitions.
func (c *Controller) Sync(ctx context.Context) error {
	on, err := c.relay.State(ctx)
	if err != nil {
		return fmt.Errorf("read relay state: %w", err)
	}
	c.heating = on
	return nil
}

// IsHeating reports the last commanded relay state.
func (c *Controller) IsHeating() bool {
	return c.heating
}

// ActiveRule is the rule behind the most recent decision, or "none".
func (c *Controller) ActiveRule() string {
	return c.activeRule
}

// Apply carries out one decision. A None instruction holds the current
// relay state and leaves the active rule naming whatever last drove it.
// On an actual transition the relay is written first; if that write fails
// the controller's view is unchanged and the next tick retries.
func (c *Controller) Apply(ctx context.Context, d types.HeatingDecision) error {
	var want bool
	switch d.Instruction {
	case types.InstructionOn:
		want = true
	case types.InstructionOff:
		want = false
	default:
		return nil
	}

	if want == c.heating {
		c.activeRule = d.RuleName
		return nil
	}

	if !want && !d.Forced && c.MinRuntime > 0 &&
		!c.startedAt.IsZero() && d.Timestamp.Sub(c.startedAt) < c.MinRuntime {
		log.Ctx(ctx).DebugContext(ctx, "holding heater on for minimum runtime",
			slog.String("rule", d.RuleName),
			slog.Time("startedAt", c.startedAt),
		)
		return nil
	}

	if err := c.relay.SetState(ctx, want); err != nil {
		return fmt.Errorf("set relay %s: %w", d.Instruction, err)
	}
	c.heating = want
	c.activeRule = d.RuleName

	log.Ctx(ctx).InfoContext(ctx, "heater state changed",
		slog.Bool("on", want),
		slog.String("rule", d.RuleName),
		slog.Bool("forced", d.Forced),
	)

	now := d.Timestamp
	tankTemp := c.tank.State().EstimatedTempC
	if want {
		c.startedAt = now
		c.tank.RecordSessionStart(now)
		c.publish(ctx, types.Event{
			Name:      types.EventHeatingStarted,
			Timestamp: now,
			Rule:      d.RuleName,
			TankTempC: tankTemp,
		})
		if d.RuleName == rules.RuleOffpeakFallback {
			c.publish(ctx, types.Event{
				Name:      types.EventFallbackActivated,
				Timestamp: now,
				Rule:      d.RuleName,
				TankTempC: tankTemp,
			})
		}
	} else {
		c.tank.RecordSessionEnd(now)
		c.publish(ctx, types.Event{
			Name:      types.EventHeatingStopped,
			Timestamp: now,
			Rule:      d.RuleName,
			TankTempC: tankTemp,
		})
	}
	if d.RuleName != types.RuleNameNone && !d.Forced {
		c.publish(ctx, types.Event{
			Name:      types.EventRuleTriggered,
			Timestamp: now,
			Rule:      d.RuleName,
			Action:    d.Instruction.String(),
			TankTempC: tankTemp,
		})
	}
	return nil
}

// Stop turns the heater off immediately, bypassing the minimum-runtime
// hold. Used by the stop-heating service.
func (c *Controller) Stop(ctx context.Context, now time.Time) error {
	return c.Apply(ctx, types.HeatingDecision{
		Timestamp:   now,
		Instruction: types.InstructionOff,
		RuleName:    types.RuleNameNone,
		Forced:      true,
		Description: "stop requested",
	})
}

// publish is best-effort, a bus failure is logged and dropped.
func (c *Controller) publish(ctx context.Context, ev types.Event) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		log.Ctx(ctx).WarnContext(ctx, "event publish failed",
			slog.String("event", ev.Name),
			slog.String("error", err.Error()),
		)
	}
}
