package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lshigami/Pangolin/config"
	"github.com/lshigami/Pangolin/internal/auth"
	"github.com/lshigami/Pangolin/internal/model"
	"github.com/lshigami/Pangolin/internal/service"
	"github.com/lshigami/Pangolin/internal/transport"
	"github.com/rs/zerolog/log"
)

// Manager owns the registry of live attempt controllers. Controllers are
// independent per attempt; the only cross-attempt serialization happens inside
// the history store.
type Manager struct {
	mu          sync.Mutex
	controllers map[string]*Controller

	gate     *PreparationGate
	issuer   auth.CredentialIssuer
	dialer   transport.Dialer
	recorder service.ResultRecorder
	grader   service.GraderService

	connectTimeout time.Duration
	gracePeriod    time.Duration
	retention      time.Duration
}

func NewManager(
	cfg *config.Config,
	issuer auth.CredentialIssuer,
	dialer transport.Dialer,
	recorder service.ResultRecorder,
	grader service.GraderService,
) *Manager {
	connectTimeout := cfg.Session.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 15 * time.Second
	}
	gracePeriod := cfg.Session.GracePeriod
	if gracePeriod <= 0 {
		gracePeriod = 30 * time.Second
	}
	retention := cfg.Session.AttemptRetention
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &Manager{
		controllers:    make(map[string]*Controller),
		gate:           NewPreparationGate(cfg.Session.RequiredChecks),
		issuer:         issuer,
		dialer:         dialer,
		recorder:       recorder,
		grader:         grader,
		connectTimeout: connectTimeout,
		gracePeriod:    gracePeriod,
		retention:      retention,
	}
}

// StartAttempt gates on the preparation checklist, then drives a fresh
// controller through Preparing into Connecting. A *PreparationError is
// returned (and no attempt exists) when required items are missing.
func (m *Manager) StartAttempt(ctx context.Context, studentKey string, checklist Checklist) (model.ExamAttempt, *auth.Credential, error) {
	if studentKey == "" {
		return model.ExamAttempt{}, nil, fmt.Errorf("student key is required")
	}

	if ok, missing := m.gate.ReadyToStart(checklist); !ok {
		log.Info().Str("studentKey", studentKey).Strs("missing", missing).Msg("StartAttempt refused, preparation incomplete")
		return model.ExamAttempt{}, nil, &PreparationError{Missing: missing}
	}

	controller := NewController(studentKey, m.issuer, m.dialer, m.recorder, m.grader, m.connectTimeout, m.gracePeriod)
	credential, err := controller.Begin(ctx)
	if err != nil {
		// The controller already holds its Aborted snapshot; register it so the
		// client can inspect the failed attempt.
		snapshot := controller.Snapshot()
		if snapshot.AttemptID != "" {
			m.register(snapshot.AttemptID, controller)
		}
		return snapshot, nil, err
	}

	snapshot := controller.Snapshot()
	m.register(snapshot.AttemptID, controller)
	return snapshot, credential, nil
}

// Get returns the controller for a live or recently finished attempt.
func (m *Manager) Get(attemptID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	controller, ok := m.controllers[attemptID]
	return controller, ok
}

// End routes a user-initiated end request to the attempt's controller.
func (m *Manager) End(attemptID string) error {
	controller, ok := m.Get(attemptID)
	if !ok {
		return fmt.Errorf("no attempt with id %s", attemptID)
	}
	return controller.End()
}

// DeliverResult routes an agent-submitted result payload to its attempt and
// waits for the recorder's verdict.
func (m *Manager) DeliverResult(ctx context.Context, attemptID string, result *model.ExamResult) (service.SubmitOutcome, error) {
	controller, ok := m.Get(attemptID)
	if !ok {
		return service.SubmitOutcome{}, fmt.Errorf("no attempt with id %s", attemptID)
	}
	return controller.DeliverResult(ctx, result)
}

// register adds the controller to the registry and schedules its eviction:
// terminal attempts stay readable for the retention window so clients can
// fetch the final snapshot, then the entry is removed.
func (m *Manager) register(attemptID string, controller *Controller) {
	m.mu.Lock()
	m.controllers[attemptID] = controller
	m.mu.Unlock()

	go func() {
		<-controller.Done()
		<-time.After(m.retention)
		m.mu.Lock()
		delete(m.controllers, attemptID)
		m.mu.Unlock()
	}()
}
