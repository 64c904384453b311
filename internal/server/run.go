package server

import (
	"context"
	"errors"
	"time"

	"datadetector/internal/audit"
	"datadetector/internal/backend"
	"datadetector/internal/config"
	"datadetector/internal/detect"
	"datadetector/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// FromConfig wires the configured backend and audit store into a Server.
// The returned store must be closed by the caller.
func FromConfig(cfg config.Config, logger logging.Logger) (*Server, audit.Store, error) {
	b, err := backend.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := audit.Open(cfg.Audit.Driver, cfg.Audit.Path)
	if err != nil {
		return nil, nil, err
	}
	n := detect.New(b, detect.Config{Language: cfg.Language, Location: cfg.Location(), Logger: logger})
	s := New(n, Options{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
		Offsets:         detect.OffsetUnit(cfg.Server.Offsets),
		Backend:         b.Name(),
		Audit:           store,
		Logger:          logger,
	})
	return s, store, nil
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger logging.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}
	s, store, err := FromConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close audit store", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}
