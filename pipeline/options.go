package pipeline

import (
	"log/slog"
	"time"
)

type OrchestratorOption func(o *Orchestrator)

// WithOrchestratorLogger specifies the logger for the orchestrator
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics specifies the run metrics collector
func WithMetrics(m *Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithShutdownTimeout bounds the adapter shutdown phase.
// Defaults to 10s
func WithShutdownTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.shutdownTimeout = d
	}
}

type SchedulerOption func(s *Scheduler)

// WithSchedulerLogger specifies the logger for the scheduler
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithQueryInterval specifies how often the scheduler polls its
// due-time queue. Defaults to 1s
func WithQueryInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.queryInterval = d
	}
}
