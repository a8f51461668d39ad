package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	merco "github.com/SametHaymana/merco-api"
	"github.com/SametHaymana/merco-api/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() merco.MetricsSnapshot
	AuditDropped() uint64
}

// latencyGauge carries one cumulative bucket series per "le" attribute plus a
// sample count. The engine keeps no sum, so a real OTel histogram cannot be fed.
type latencyGauge struct {
	id      merco.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	les     []metric.ObserveOption
}

// OTelExporter observes engine counters on every collection cycle of the
// caller's MeterProvider.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     map[merco.MetricID]metric.Int64ObservableCounter
	latency      []latencyGauge
	auditDropped metric.Int64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engine *merco.Engine) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers the instruments and one callback that
// reads a single snapshot per collection.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exp := &OTelExporter{
		source:   source,
		counters: make(map[merco.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		exp.counters[def.ID] = c
		observables = append(observables, c)
	}

	labels := internaldefs.BucketLabels()
	for _, def := range internaldefs.HistogramDefs {
		g, err := exp.newLatencyGauge(meter, def, labels)
		if err != nil {
			return nil, err
		}
		exp.latency = append(exp.latency, g)
		observables = append(observables, g.buckets, g.count)
	}

	dropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full."),
	)
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	exp.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(exp.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exp.registration = reg
	return exp, nil
}

func (e *OTelExporter) newLatencyGauge(meter metric.Meter, def internaldefs.HistogramDef, labels []string) (latencyGauge, error) {
	buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative count per upper bound."))
	if err != nil {
		return latencyGauge{}, fmt.Errorf("gauge %s_bucket: %w", def.Name, err)
	}
	count, err := meter.Int64ObservableGauge(def.Name+"_count",
		metric.WithDescription(def.Help+" Sample count."))
	if err != nil {
		return latencyGauge{}, fmt.Errorf("gauge %s_count: %w", def.Name, err)
	}
	les := make([]metric.ObserveOption, len(labels))
	for i, le := range labels {
		les[i] = metric.WithAttributes(attribute.String("le", le))
	}
	return latencyGauge{id: def.ID, buckets: buckets, count: count, les: les}, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, g := range e.latency {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[g.id]))
		for i, opt := range g.les {
			o.ObserveInt64(g.buckets, int64(cum[i]), opt)
		}
		o.ObserveInt64(g.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. The instruments stay with the meter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
