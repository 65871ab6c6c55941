package forecast

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Backend is a loaded forecaster that owns releasable resources.
type Backend interface {
	Forecaster
	io.Closer
}

// Opener loads a backend. It is called at most once per (re)initialization.
type Opener func() (Backend, error)

// Service guards a single forecasting backend. Initialization happens
// exactly once, either explicitly through Init or lazily on first use; a
// failed initialization is reported once and every later call fails with
// ErrServiceUnavailable until Reinit succeeds.
type Service struct {
	mu        sync.RWMutex
	open      Opener
	backend   Backend
	initErr   error
	attempted bool
	logger    *zap.Logger
}

func NewService(open Opener, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{open: open, logger: logger}
}

// Init loads the backend if no attempt has been made yet and returns the
// outcome of the (single) attempt.
func (s *Service) Init() error {
	s.mu.RLock()
	if s.attempted {
		err := s.initErr
		s.mu.RUnlock()
		return err
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempted {
		return s.initErr
	}
	return s.initLocked()
}

// Reinit releases the current backend, if any, and loads a fresh one.
func (s *Service) Reinit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return s.initLocked()
}

func (s *Service) initLocked() error {
	s.attempted = true
	backend, err := s.open()
	if err != nil {
		s.initErr = Unavailable(err)
		s.logger.Error("forecaster initialization failed", zap.Error(err))
		return s.initErr
	}
	s.backend = backend
	s.initErr = nil
	s.logger.Info("forecaster initialized")
	return nil
}

// Ready reports whether a backend is loaded.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend != nil
}

func (s *Service) Forecast(ctx context.Context, window []float64, horizons []int) (Forecast, error) {
	if err := s.Init(); err != nil {
		return Forecast{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backend == nil {
		return Forecast{}, ErrServiceUnavailable
	}
	out, err := s.backend.Forecast(ctx, window, horizons)
	if err != nil {
		return Forecast{}, Unavailable(err)
	}
	if err := out.validate(len(horizons)); err != nil {
		return Forecast{}, Unavailable(err)
	}
	return out, nil
}

// Close releases the backend. Later calls fail as unavailable.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.closeLocked()
	s.attempted = true
	s.initErr = ErrServiceUnavailable
	return err
}

func (s *Service) closeLocked() error {
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	return err
}
