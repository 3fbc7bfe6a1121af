// Package session keeps one mounted product table per console client. Each
// session owns an event loop; all access to its table goes through that loop.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/mixa1334/ProductApp/eventloop"
	"github.com/mixa1334/ProductApp/form"
	"github.com/mixa1334/ProductApp/middleware"
	"github.com/mixa1334/ProductApp/remote"
	"github.com/mixa1334/ProductApp/table"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID string

	loop   *eventloop.Loop
	table  *table.Table
	cancel context.CancelFunc

	mu       sync.Mutex
	lastUsed time.Time
	now      func() time.Time
}

// Do runs fn against the session's table on its loop.
func (s *Session) Do(ctx context.Context, fn func(t *table.Table) error) error {
	s.touch()
	var fnErr error
	if err := s.loop.Call(ctx, func() { fnErr = fn(s.table) }); err != nil {
		return errors.Wrap(err, "session loop unavailable")
	}
	return fnErr
}

func (s *Session) View(ctx context.Context) (table.View, error) {
	var view table.View
	err := s.Do(ctx, func(t *table.Table) error {
		view = t.View()
		return nil
	})
	return view, err
}

// Settle waits until every remote call the table issued has been applied.
func (s *Session) Settle(ctx context.Context) error {
	return s.loop.Settle(ctx)
}

// Subscribe streams table views, starting with the current one. Slow readers
// only ever see the latest view.
func (s *Session) Subscribe(ctx context.Context) (<-chan table.View, func(), error) {
	ch := make(chan table.View, 1)
	publish := func(v table.View) {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}

	var unsubscribe func()
	err := s.Do(ctx, func(t *table.Table) error {
		unsubscribe = t.Subscribe(publish)
		publish(t.View())
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return ch, func() {
		s.loop.Post(unsubscribe)
	}, nil
}

// Done is closed when the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.loop.Done()
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	service     remote.RecordService
	validator   *form.Validator
	idleTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewStore(service remote.RecordService, validator *form.Validator, idleTimeout time.Duration, logger *zap.Logger) *Store {
	return &Store{
		sessions:    make(map[string]*Session),
		service:     service,
		validator:   validator,
		idleTimeout: idleTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Open starts a session and mounts its table, which loads the full list.
func (s *Store) Open(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	logger := s.logger.With(zap.String("session_id", id))

	loopCtx, cancel := context.WithCancel(context.Background())
	loop := eventloop.New(logger)
	go loop.Run(loopCtx)

	sess := &Session{
		ID:       id,
		loop:     loop,
		cancel:   cancel,
		lastUsed: s.now(),
		now:      s.now,
	}

	err := loop.Call(ctx, func() {
		sess.table = table.New(loopCtx, s.service, loop, s.validator, logger)
		sess.table.Mount()
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to mount table")
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	middleware.SessionOpened()
	logger.Info("Session opened")
	return sess, nil
}

func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q", id)
	}
	return sess, nil
}

func (s *Store) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrNotFound, "%q", id)
	}
	s.shutdown(sess)
	return nil
}

func (s *Store) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		s.shutdown(sess)
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ReapIdle closes sessions unused for longer than the idle timeout.
func (s *Store) ReapIdle() int {
	if s.idleTimeout <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTimeout)

	s.mu.Lock()
	var idle []*Session
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		s.shutdown(sess)
	}
	return len(idle)
}

// RunReaper reaps idle sessions every interval until ctx is done.
func (s *Store) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.ReapIdle(); n > 0 {
				s.logger.Info("Reaped idle sessions", zap.Int("count", n))
			}
		}
	}
}

func (s *Store) shutdown(sess *Session) {
	sess.cancel()
	<-sess.loop.Done()
	middleware.SessionClosed()
	s.logger.Info("Session closed", zap.String("session_id", sess.ID))
}
