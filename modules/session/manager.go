package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cinegen-server/modules/capability"
	"cinegen-server/modules/common/logger"
	"cinegen-server/modules/workflow"
)

const saveTimeout = 5 * time.Second

// Notifier receives every committed state of a session.
type Notifier interface {
	Publish(sessionID string, st workflow.State)
}

// Session - one wizard run
type Session struct {
	ID         string
	Controller *workflow.Controller
	CreatedAt  time.Time

	mu           sync.Mutex
	lastActivity time.Time
	deleted      atomic.Bool
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// LastActivity - last time the session was looked up
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Metrics - counters exposed on /metrics
type Metrics struct {
	TotalSessions  int       `json:"totalSessions"`
	ActiveSessions int       `json:"activeSessions"`
	Restored       int       `json:"restoredSessions"`
	StartTime      time.Time `json:"startTime"`
}

// ManagerConfig - manager settings
type ManagerConfig struct {
	MaxImageBytes int64
	IdleTimeout   time.Duration // controllers idle longer than this are evicted; the snapshot stays in the store
}

// Manager - live controllers by session id, backed by a Store
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	metrics  Metrics

	client   capability.Client
	store    Store
	notifier Notifier
	cfg      ManagerConfig
	now      func() time.Time
	log      *logrus.Entry
}

// NewManager - notifier may be nil
func NewManager(client capability.Client, store Store, notifier Notifier, cfg ManagerConfig) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		metrics:  Metrics{StartTime: time.Now()},
		client:   client,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.WithModule("Session"),
	}
}

// observer persists and publishes commits of sess until it is deleted. It
// runs under the controller lock, so it must not take m.mu.
func (m *Manager) observer(sess *Session) workflow.Observer {
	id := sess.ID
	return func(st workflow.State) {
		if sess.deleted.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := m.store.Save(ctx, id, st); err != nil {
			m.log.Errorf("❌ [Session] Failed to save snapshot for %s: %v", id, err)
		}
		if m.notifier != nil {
			m.notifier.Publish(id, st)
		}
	}
}

func (m *Manager) newSession(id string, st *workflow.State) *Session {
	now := m.now()
	sess := &Session{ID: id, CreatedAt: now, lastActivity: now}
	opts := workflow.Options{MaxImageBytes: m.cfg.MaxImageBytes, Observer: m.observer(sess)}
	if st == nil {
		sess.Controller = workflow.NewController(m.client, opts)
	} else {
		sess.Controller = workflow.RestoreController(m.client, opts, *st)
	}
	return sess
}

// Create - start a new session at the image intake step
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	sess := m.newSession(id, nil)
	if err := m.store.Save(ctx, id, sess.Controller.State()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.metrics.TotalSessions++
	m.metrics.ActiveSessions = len(m.sessions)
	m.mu.Unlock()

	m.log.Infof("✅ [Session] Created session %s", id)
	return sess, nil
}

// Get - live session, or one restored from the store
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		sess.touch(m.now())
		return sess, nil
	}

	st, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		existing.touch(m.now())
		return existing, nil
	}
	sess = m.newSession(id, &st)
	m.sessions[id] = sess
	m.metrics.Restored++
	m.metrics.ActiveSessions = len(m.sessions)
	m.log.Infof("♻️  [Session] Restored session %s at step %s", id, st.Step)
	return sess, nil
}

// Delete - drop the session everywhere; an outstanding call is cancelled
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.metrics.ActiveSessions = len(m.sessions)
	m.mu.Unlock()

	if ok {
		sess.deleted.Store(true)
		sess.Controller.Close()
	} else if _, err := m.store.Load(ctx, id); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.log.Infof("🗑️  [Session] Deleted session %s", id)
	return nil
}

// Cleanup - evict controllers idle for longer than IdleTimeout that have
// nothing in flight. Returns the number evicted.
func (m *Manager) Cleanup() int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	cleaned := 0
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActivity()) <= m.cfg.IdleTimeout {
			continue
		}
		if sess.Controller.State().Processing() {
			continue
		}
		delete(m.sessions, id)
		cleaned++
	}
	m.metrics.ActiveSessions = len(m.sessions)

	if cleaned > 0 {
		m.log.Infof("🧹 [Session] Evicted %d idle session(s) (Active: %d)", cleaned, len(m.sessions))
	}
	return cleaned
}

// Metrics - counters snapshot
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}
