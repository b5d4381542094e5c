package event

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// stackMetrics 同名的 Stack 共用同一组指标
type stackMetrics struct {
	dispatched       prometheus.Counter
	failed           prometheus.Counter
	dropped          prometheus.Counter
	watchdogRestarts prometheus.Counter
	pending          prometheus.Gauge
}

func newStackMetrics(name string, registerer prometheus.Registerer) (*stackMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &stackMetrics{}
	var err error
	if m.dispatched, err = registerCounter(registerer, name+"_dispatched_total", "Total number of dispatched items"); err != nil {
		return nil, err
	}
	if m.failed, err = registerCounter(registerer, name+"_failed_total", "Total number of failed items"); err != nil {
		return nil, err
	}
	if m.dropped, err = registerCounter(registerer, name+"_dropped_total", "Total number of items dropped after a failure"); err != nil {
		return nil, err
	}
	if m.watchdogRestarts, err = registerCounter(registerer, name+"_watchdog_restarts_total", "Total number of drains restarted by the watchdog"); err != nil {
		return nil, err
	}

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name + "_pending",
		Help: "Number of pending items",
	})
	if err := registerer.Register(gauge); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, errors.Wrapf(err, "register %s_pending failed", name)
		}
		gauge = are.ExistingCollector.(prometheus.Gauge)
	}
	m.pending = gauge

	return m, nil
}

func registerCounter(registerer prometheus.Registerer, name string, help string) (prometheus.Counter, error) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	if err := registerer.Register(counter); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, errors.Wrapf(err, "register %s failed", name)
		}
		return are.ExistingCollector.(prometheus.Counter), nil
	}
	return counter, nil
}
