package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daybetterd/internal/api"
	"github.com/dokzlo13/daybetterd/internal/config"
	"github.com/dokzlo13/daybetterd/internal/device"
	"github.com/dokzlo13/daybetterd/internal/ledger"
)

// APIService wraps the HTTP API server.
type APIService struct {
	cfg    *config.Config
	server *api.Server

	wg sync.WaitGroup
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config, registry *device.Registry, controller api.Controller, poller api.Poller, history *ledger.Ledger) *APIService {
	handlers := api.NewHandlers(registry, controller, poller, history)
	return &APIService{
		cfg:    cfg,
		server: api.NewServer(cfg.API.Host, cfg.API.Port, handlers.Router()),
	}
}

// Start begins the API server if enabled. A listener that cannot bind is fatal.
func (s *APIService) Start(ctx context.Context, onFatalError func(error)) {
	if !s.cfg.API.Enabled {
		log.Debug().Msg("API server disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("API server error")
			if onFatalError != nil {
				onFatalError(err)
			}
		}
	}()
}

// Wait blocks until the server has stopped and in-flight requests have drained.
// It returns at once if the server was never started.
func (s *APIService) Wait() {
	s.wg.Wait()
}
