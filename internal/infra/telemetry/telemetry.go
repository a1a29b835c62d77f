package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "memora"

// GameMetrics tracks the session engine.
type GameMetrics struct {
	SessionsStarted  *prometheus.CounterVec
	SessionsFinished *prometheus.CounterVec
	Answers          *prometheus.CounterVec
	SessionsReaped   prometheus.Counter
}

// ReviewMetrics tracks batch coordination and push delivery.
type ReviewMetrics struct {
	BatchesCreated    prometheus.Counter
	BatchesSkipped    prometheus.Counter
	Pushes            *prometheus.CounterVec
	TokensDeactivated *prometheus.CounterVec
}

// SchedulerMetrics tracks periodic task execution.
type SchedulerMetrics struct {
	Runs           *prometheus.CounterVec
	Failures       *prometheus.CounterVec
	UsersProcessed prometheus.Counter
	UserFailures   prometheus.Counter
}

// Metrics groups every domain collector of the service.
type Metrics struct {
	Game      *GameMetrics
	Review    *ReviewMetrics
	Scheduler *SchedulerMetrics
}

// NewMetrics registers the domain collectors with reg, falling back to the default registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	game := &GameMetrics{
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "sessions_started_total",
			Help:      "Game sessions started partitioned by kind.",
		}, []string{"kind"}),
		SessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "sessions_finished_total",
			Help:      "Game sessions finished partitioned by reason.",
		}, []string{"reason"}),
		Answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "answers_total",
			Help:      "Submitted answers partitioned by correctness.",
		}, []string{"correct"}),
		SessionsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "sessions_reaped_total",
			Help:      "Stale active sessions moved to aborted.",
		}),
	}

	review := &ReviewMetrics{
		BatchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "batches_created_total",
			Help:      "Review batches created.",
		}),
		BatchesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "batches_skipped_total",
			Help:      "Notify attempts skipped because a recent batch exists.",
		}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "pushes_total",
			Help:      "Push deliveries partitioned by result.",
		}, []string{"result"}),
		TokensDeactivated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "tokens_deactivated_total",
			Help:      "FCM tokens deactivated partitioned by reason.",
		}, []string{"reason"}),
	}

	scheduler := &SchedulerMetrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduler task runs partitioned by task.",
		}, []string{"task"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "failures_total",
			Help:      "Scheduler task runs that ended with an error partitioned by task.",
		}, []string{"task"}),
		UsersProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "due_users_processed_total",
			Help:      "Users with due cards handed to the batch coordinator.",
		}),
		UserFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "due_user_failures_total",
			Help:      "Users whose notification failed during a scan.",
		}),
	}

	var err error
	if game.SessionsStarted, err = registerCounterVec(reg, game.SessionsStarted); err != nil {
		return nil, err
	}
	if game.SessionsFinished, err = registerCounterVec(reg, game.SessionsFinished); err != nil {
		return nil, err
	}
	if game.Answers, err = registerCounterVec(reg, game.Answers); err != nil {
		return nil, err
	}
	if game.SessionsReaped, err = registerCounter(reg, game.SessionsReaped); err != nil {
		return nil, err
	}
	if review.BatchesCreated, err = registerCounter(reg, review.BatchesCreated); err != nil {
		return nil, err
	}
	if review.BatchesSkipped, err = registerCounter(reg, review.BatchesSkipped); err != nil {
		return nil, err
	}
	if review.Pushes, err = registerCounterVec(reg, review.Pushes); err != nil {
		return nil, err
	}
	if review.TokensDeactivated, err = registerCounterVec(reg, review.TokensDeactivated); err != nil {
		return nil, err
	}
	if scheduler.Runs, err = registerCounterVec(reg, scheduler.Runs); err != nil {
		return nil, err
	}
	if scheduler.Failures, err = registerCounterVec(reg, scheduler.Failures); err != nil {
		return nil, err
	}
	if scheduler.UsersProcessed, err = registerCounter(reg, scheduler.UsersProcessed); err != nil {
		return nil, err
	}
	if scheduler.UserFailures, err = registerCounter(reg, scheduler.UserFailures); err != nil {
		return nil, err
	}

	return &Metrics{Game: game, Review: review, Scheduler: scheduler}, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return nil, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return nil, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// SessionStarted counts a new session of the given kind.
func (m *GameMetrics) SessionStarted(kind string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(kind).Inc()
}

// SessionFinished counts a finish transition.
func (m *GameMetrics) SessionFinished(reason string) {
	if m == nil {
		return
	}
	m.SessionsFinished.WithLabelValues(reason).Inc()
}

// Answer counts a recorded answer.
func (m *GameMetrics) Answer(correct bool) {
	if m == nil {
		return
	}
	label := "false"
	if correct {
		label = "true"
	}
	m.Answers.WithLabelValues(label).Inc()
}

// Reaped counts sessions aborted by the reaper.
func (m *GameMetrics) Reaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsReaped.Add(float64(n))
}

// BatchCreated counts a created review batch.
func (m *ReviewMetrics) BatchCreated() {
	if m == nil {
		return
	}
	m.BatchesCreated.Inc()
}

// BatchSkipped counts a notify attempt that found a recent batch.
func (m *ReviewMetrics) BatchSkipped() {
	if m == nil {
		return
	}
	m.BatchesSkipped.Inc()
}

// Push counts a push delivery outcome.
func (m *ReviewMetrics) Push(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.Pushes.WithLabelValues(result).Inc()
}

// TokenDeactivated counts a token deactivation.
func (m *ReviewMetrics) TokenDeactivated(reason string) {
	if m == nil {
		return
	}
	m.TokensDeactivated.WithLabelValues(reason).Inc()
}

// TaskRun counts a scheduler task execution and its failure, if any.
func (m *SchedulerMetrics) TaskRun(task string, err error) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(task).Inc()
	if err != nil {
		m.Failures.WithLabelValues(task).Inc()
	}
}

// UserProcessed counts one due user handled by a scan.
func (m *SchedulerMetrics) UserProcessed(err error) {
	if m == nil {
		return
	}
	m.UsersProcessed.Inc()
	if err != nil {
		m.UserFailures.Inc()
	}
}
