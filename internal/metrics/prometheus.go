package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters exported by the session core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	AuthAttempts       *prometheus.CounterVec // operation, outcome
	RateLimited        *prometheus.CounterVec // operation
	TransportFallbacks *prometheus.CounterVec // outcome
	Notifications      *prometheus.CounterVec // kind, outcome
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
// Collectors that are already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estate_auth_attempts_total",
			Help: "Total number of session operations by outcome.",
		}, []string{"operation", "outcome"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estate_auth_rate_limited_total",
			Help: "Total number of submissions rejected by the cooldown gate.",
		}, []string{"operation"}),
		TransportFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estate_auth_transport_fallbacks_total",
			Help: "Total number of fallback requests issued after a primary transport failure.",
		}, []string{"outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estate_auth_notifications_total",
			Help: "Total number of user notifications by kind, shown or suppressed.",
		}, []string{"kind", "outcome"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.AuthAttempts, err = register(reg, m.AuthAttempts)
	if err != nil {
		return nil, err
	}
	m.RateLimited, err = register(reg, m.RateLimited)
	if err != nil {
		return nil, err
	}
	m.TransportFallbacks, err = register(reg, m.TransportFallbacks)
	if err != nil {
		return nil, err
	}
	m.Notifications, err = register(reg, m.Notifications)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

// ObserveAttempt counts a finished session operation.
func (m *Metrics) ObserveAttempt(operation string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.AuthAttempts.WithLabelValues(operation, outcome).Inc()
}

// ObserveRateLimited counts a submission rejected by the gate.
func (m *Metrics) ObserveRateLimited(operation string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(operation).Inc()
}

// ObserveFallback counts a fallback transport request.
func (m *Metrics) ObserveFallback(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.TransportFallbacks.WithLabelValues(outcome).Inc()
}

// ObserveNotification counts a notification that was shown or suppressed.
func (m *Metrics) ObserveNotification(kind string, shown bool) {
	if m == nil {
		return
	}
	outcome := "shown"
	if !shown {
		outcome = "suppressed"
	}
	m.Notifications.WithLabelValues(kind, outcome).Inc()
}
