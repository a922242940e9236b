package canary

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/magyarmex/heatqueue/internal/control"
	"github.com/magyarmex/heatqueue/internal/queue"
	"github.com/magyarmex/heatqueue/pkg/types"
)

// HealthProbe reports whether the queue is currently healthy enough to
// advance to the next stage. The CLI's run command supplies one that
// derives health from the failure rate in the queue's metrics snapshot.
type HealthProbe func(ctx context.Context) (bool, error)

// Manager drives a staged rollout through Stages, checkpointing progress
// after every transition so a restart resumes rather than restarts the
// ramp from stage zero.
type Manager struct {
	Environment string
	Stages      []types.CanaryStage
	Queue       *queue.WorkQueue
	Plane       *control.Plane
	Probe       HealthProbe
	Checkpoint  *CheckpointStore
	Log         *zap.SugaredLogger

	state CheckpointData
}

// NewManager builds a Manager, loading any existing checkpoint for
// environment (or starting fresh at stage zero).
func NewManager(environment string, stages []types.CanaryStage, q *queue.WorkQueue, plane *control.Plane, probe HealthProbe, store *CheckpointStore, log *zap.SugaredLogger) (*Manager, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("canary: at least one stage is required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	state, err := store.Load(environment)
	if err != nil {
		return nil, err
	}
	return &Manager{
		Environment: environment,
		Stages:      stages,
		Queue:       q,
		Plane:       plane,
		Probe:       probe,
		Checkpoint:  store,
		Log:         log,
		state:       state,
	}, nil
}

// Stage returns the currently active stage.
func (m *Manager) Stage() types.CanaryStage {
	return m.Stages[m.state.CurrentStage]
}

// State returns a copy of the persisted rollout state.
func (m *Manager) State() CheckpointData {
	return m.state
}

// Run drives the rollout to completion: at each stage it waits at least
// MinDuration, probes health, advances on success, and rolls back to the
// last stable stage on the first unhealthy probe or probe error.
func (m *Manager) Run(ctx context.Context) error {
	for {
		stage := m.Stage()
		m.Log.Infow("canary stage active", "environment", m.Environment, "stage", stage.Name, "weight", stage.Weight)

		select {
		case <-time.After(stage.MinDuration):
		case <-ctx.Done():
			return ctx.Err()
		}

		m.sampleTraffic(stage)

		healthy, err := m.Probe(ctx)
		if err != nil || !healthy {
			m.rollback(err)
			return nil
		}

		if m.state.CurrentStage == len(m.Stages)-1 {
			m.Log.Infow("canary rollout complete", "environment", m.Environment, "stage", stage.Name)
			return m.persist()
		}

		m.advance()
		if err := m.persist(); err != nil {
			return err
		}
	}
}

// sampleTraffic enqueues a single synthetic probe job weighted by the
// stage's traffic share, so a rollout with Plane wired in actually
// exercises the queue it is supposedly ramping rather than just sleeping
// and polling a health probe.
func (m *Manager) sampleTraffic(stage types.CanaryStage) {
	if m.Plane == nil {
		return
	}
	sess := control.NewSession("canary", types.RoleAdmin)
	_, _ = m.Plane.Enqueue(sess, fmt.Sprintf("canary-probe:%s", stage.Name), func(ctx *queue.JobContext) (any, error) {
		return stage.Weight, nil
	}, 0, 0)
}

func (m *Manager) advance() {
	m.state.LastStable = m.state.CurrentStage
	m.state.CurrentStage++
	m.state.History = append(m.state.History, m.state.CurrentStage)
}

func (m *Manager) rollback(probeErr error) {
	m.Log.Warnw("canary rollback triggered", "environment", m.Environment, "from_stage", m.state.CurrentStage, "to_stage", m.state.LastStable, "err", probeErr)
	m.state.CurrentStage = m.state.LastStable
	m.state.History = append(m.state.History, m.state.CurrentStage)
	m.state.RolledBack = true
	_ = m.persist()
}

func (m *Manager) persist() error {
	m.state.Environment = m.Environment
	return m.Checkpoint.Write(m.state)
}
