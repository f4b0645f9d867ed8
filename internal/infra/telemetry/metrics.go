package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
)

// AuthMetrics counts authentication outcomes in Prometheus.
type AuthMetrics struct {
	Logins    *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
	Lockouts  *prometheus.CounterVec
	TwoFactor *prometheus.CounterVec
}

// NewAuthMetrics registers the auth counters with reg, reusing collectors that already exist.
func NewAuthMetrics(reg prometheus.Registerer, namespace string) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "marketplace"
	}

	logins, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts partitioned by outcome.",
	}, "outcome")
	if err != nil {
		return nil, err
	}

	refreshes, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "refreshes_total",
		Help:      "Refresh token rotations partitioned by outcome.",
	}, "outcome")
	if err != nil {
		return nil, err
	}

	lockouts, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "lockouts_total",
		Help:      "Throttle lockouts partitioned by scope.",
	}, "scope")
	if err != nil {
		return nil, err
	}

	twoFactor, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "two_factor_verifications_total",
		Help:      "Second factor verifications partitioned by outcome.",
	}, "outcome")
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		Logins:    logins,
		Refreshes: refreshes,
		Lockouts:  lockouts,
		TwoFactor: twoFactor,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register %s collector: %w", opts.Name, err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing %s collector has unexpected type %T", opts.Name, already.ExistingCollector)
		}
		return existing, nil
	}
	return counter, nil
}

func (m *AuthMetrics) ObserveLogin(outcome string) {
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) ObserveRefresh(outcome string) {
	m.Refreshes.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) ObserveLockout(scope string) {
	m.Lockouts.WithLabelValues(scope).Inc()
}

func (m *AuthMetrics) ObserveTwoFactor(outcome string) {
	m.TwoFactor.WithLabelValues(outcome).Inc()
}

var _ port.AuthMetrics = (*AuthMetrics)(nil)
