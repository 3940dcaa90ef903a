package token

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daybetterd/internal/daybetter"
)

// API is the token-taking surface of the vendor client.
type API interface {
	Devices(ctx context.Context, token string) ([]daybetter.Device, error)
	DeviceStatus(ctx context.Context, token, deviceName string) (*daybetter.Status, error)
	Control(ctx context.Context, token string, cmd daybetter.Command) (*daybetter.ControlResult, error)
	PIDs(ctx context.Context, token string) (*daybetter.PIDs, error)
}

// Session binds the vendor client to a token manager so callers never
// handle credentials. A 401 drops the cached credential; the next call
// exchanges a fresh one. Nothing is retried here.
type Session struct {
	api    API
	tokens *Manager
}

// NewSession creates a session.
func NewSession(api API, tokens *Manager) *Session {
	return &Session{api: api, tokens: tokens}
}

// Devices lists the account's devices.
func (s *Session) Devices(ctx context.Context) ([]daybetter.Device, error) {
	tok, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	devices, err := s.api.Devices(ctx, tok)
	return devices, s.check(err)
}

// DeviceStatus fetches one device's status.
func (s *Session) DeviceStatus(ctx context.Context, deviceName string) (*daybetter.Status, error) {
	tok, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	status, err := s.api.DeviceStatus(ctx, tok, deviceName)
	return status, s.check(err)
}

// Control sends one control command.
func (s *Session) Control(ctx context.Context, cmd daybetter.Command) (*daybetter.ControlResult, error) {
	tok, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.api.Control(ctx, tok, cmd)
	return result, s.check(err)
}

// PIDs fetches the vendor PID lists.
func (s *Session) PIDs(ctx context.Context) (*daybetter.PIDs, error) {
	tok, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	pids, err := s.api.PIDs(ctx, tok)
	return pids, s.check(err)
}

func (s *Session) check(err error) error {
	var statusErr *daybetter.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		log.Warn().Str("op", statusErr.Op).Msg("Access token rejected, dropping cached credential")
		s.tokens.Invalidate()
	}
	return err
}
