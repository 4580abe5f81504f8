package workflow

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("payroll-workflow")

var ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "payroll",
	Subsystem: "reconcile",
	Name:      "outcomes_total",
	Help:      "Reconcile results by outcome (consistent, corrected, flagged, error).",
}, []string{"outcome"})

var SyncOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "payroll",
	Subsystem: "sync",
	Name:      "records_total",
	Help:      "Payroll rows touched by sync, by upsert outcome.",
}, []string{"outcome"})

var SyncEmployeeFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "payroll",
	Subsystem: "sync",
	Name:      "employee_failures_total",
	Help:      "Employees whose sync failed and were reported in failed[].",
})

var LedgerAppends = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "payroll",
	Subsystem: "ledger",
	Name:      "appends_total",
	Help:      "Adjustment append attempts by result.",
}, []string{"result"})

var OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "payroll",
	Subsystem: "outbox",
	Name:      "publish_total",
	Help:      "Outbox publish attempts by status.",
}, []string{"status"})

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
