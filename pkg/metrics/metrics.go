// Package metrics exposes the router's operational state to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors updated once per evaluation tick.
type Metrics struct {
	TankTempC           prometheus.Gauge
	HeaterOn            prometheus.Gauge
	DailyHeatingMinutes prometheus.Gauge
	DailyEnergyWH       prometheus.Gauge
	EstimatedShowers    prometheus.Gauge
	SessionsToday       prometheus.Gauge

	TicksTotal       prometheus.Counter
	TickErrorsTotal  prometheus.Counter
	RuleMatchesTotal *prometheus.CounterVec
	EventsTotal      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TankTempC: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solarrouter",
			Name:      "tank_temperature_celsius",
			Help:      "Estimated water tank temperature.",
		}),
		HeaterOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solarrouter",
			Name:      "heater_on",
			Help:      "Whether the heater relay is commanded on (1) or off (0).",
		}),
		DailyHeatingMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solarrouter",
			Name:      "daily_heating_minutes",
			Help:      "Accrued heating time for the current local day.",
		}),
		DailyEnergyWH: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solarrouter",
			Name:      "daily_heating_energy_wh",
			Help:      "Accrued heating energy for the current local day.",
		}),
		EstimatedShowers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solarrouter",
			Name:      "estimated_showers",
			Help:      "Showers available at the current tank temperature.",
		}),
		SessionsToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solarrouter",
			Name:      "heating_sessions_today",
			Help:      "Heating sessions started during the current local day.",
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solarrouter",
			Name:      "evaluation_ticks_total",
			Help:      "Evaluation ticks run since start.",
		}),
		TickErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solarrouter",
			Name:      "evaluation_tick_errors_total",
			Help:      "Evaluation ticks that failed to apply their decision.",
		}),
		RuleMatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solarrouter",
			Name:      "rule_matches_total",
			Help:      "Decisions attributed to each rule.",
		}, []string{"rule"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solarrouter",
			Name:      "events_total",
			Help:      "Events published on the bus.",
		}, []string{"event"}),
	}

	reg.MustRegister(
		m.TankTempC,
		m.HeaterOn,
		m.DailyHeatingMinutes,
		m.DailyEnergyWH,
		m.EstimatedShowers,
		m.SessionsToday,
		m.TicksTotal,
		m.TickErrorsTotal,
		m.RuleMatchesTotal,
		m.EventsTotal,
	)
	return m
}
