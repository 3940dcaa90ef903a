package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daybetterd/internal/config"
	"github.com/dokzlo13/daybetterd/internal/control"
	"github.com/dokzlo13/daybetterd/internal/daybetter"
	"github.com/dokzlo13/daybetterd/internal/db"
	"github.com/dokzlo13/daybetterd/internal/device"
	"github.com/dokzlo13/daybetterd/internal/discovery"
	"github.com/dokzlo13/daybetterd/internal/eventbus"
	"github.com/dokzlo13/daybetterd/internal/ledger"
	"github.com/dokzlo13/daybetterd/internal/mqtt"
	"github.com/dokzlo13/daybetterd/internal/storage/kv"
	"github.com/dokzlo13/daybetterd/internal/token"
)

// KV bucket names
const (
	BucketCredentials = "credentials"
	BucketSnapshots   = "snapshots"
)

const kvCleanupInterval = time.Hour

// Services is the per-instance container for all components.
// It manages initialization order and dependencies.
type Services struct {
	cfg         *config.Config
	instanceKey string

	// Core infrastructure
	DB     *db.DB
	KV     *kv.Manager
	Ledger *ledger.Ledger

	// Cloud access
	Client  *daybetter.Client
	Tokens  *token.Manager
	Session *token.Session

	// Device state
	Registry    *device.Registry
	Bus         *eventbus.Bus
	Coordinator *control.Coordinator

	// High-level services
	Poll *PollService
	API  *APIService
	MQTT *mqtt.Publisher

	connectMQTT func(config.MQTTConfig) (*mqtt.Publisher, error)
}

// InstanceKey derives a stable integration instance ID from the endpoint and
// user code. It keys the credential slot.
func InstanceKey(baseURL, userCode string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(baseURL+"|"+userCode)).String()
}

// NewServices creates all services with proper dependency injection.
// Nothing talks to the network until Start.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{
		cfg:         cfg,
		instanceKey: InstanceKey(cfg.DayBetter.BaseURL, cfg.DayBetter.UserCode),
		connectMQTT: mqtt.Connect,
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.KV = kv.NewManager(database.DB)
	s.Ledger = ledger.New(database.DB)

	s.Client = daybetter.NewClient(
		cfg.DayBetter.BaseURL,
		cfg.DayBetter.Timeout.Duration(),
		cfg.DayBetter.RateLimitRPS,
	)
	s.Tokens = token.NewManager(s.Client, s.KV.Bucket(BucketCredentials, true), token.Options{
		Key:      s.instanceKey,
		UserCode: cfg.DayBetter.UserCode,
		TTL:      cfg.DayBetter.TokenTTL.Duration(),
		Timeout:  cfg.DayBetter.Timeout.Duration(),
		Recorder: s.Ledger,
	})
	s.Session = token.NewSession(s.Client, s.Tokens)

	s.Registry = device.NewRegistry(s.KV.Bucket(BucketSnapshots, true))
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.Registry.Subscribe(s.Bus.Listener())

	s.Poll = NewPollService(cfg, s.Registry, s.Session, s.Ledger)
	s.Coordinator = control.NewCoordinator(s.Registry, s.Session, s.Poll.Scheduler, s.Ledger)
	s.API = NewAPIService(cfg, s.Registry, s.Coordinator, s.Poll.Scheduler, s.Ledger)

	return s, nil
}

// Start discovers devices and starts all background services.
// A credential that cannot be obtained is returned as an error.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	log.Info().Str("instance", s.instanceKey).Msg("Starting DayBetter integration")

	infos, err := discovery.Discover(ctx, s.Session, s.cfg.DayBetter.LightPIDs)
	if err != nil {
		var authErr *token.AuthError
		if errors.As(err, &authErr) {
			return err
		}
		// The cloud is unreachable but the token is fine; run with no devices
		// rather than refusing to start
		log.Error().Err(err).Msg("Device discovery failed")
	}

	// Subscribers must be in place before registration so the initial
	// retained state reaches the broker
	s.startMQTT()

	for _, info := range infos {
		d := s.Registry.Add(info)
		s.Bus.Publish(eventbus.Event{Type: eventbus.EventDeviceRegistered, View: d.View()})
		log.Info().
			Str("device", info.Name).
			Str("name", info.DisplayName).
			Str("kind", string(info.Kind)).
			Str("capabilities", info.Capabilities.String()).
			Msg("Registered device")
	}

	s.KV.StartCleanup(ctx, kvCleanupInterval)
	s.Poll.Start(ctx)
	s.API.Start(ctx, onFatalError)
	return nil
}

func (s *Services) startMQTT() {
	if !s.cfg.MQTT.Enabled {
		return
	}
	publisher, err := s.connectMQTT(s.cfg.MQTT)
	if err != nil {
		log.Error().Err(err).Msg("MQTT disabled for this run")
		return
	}
	s.MQTT = publisher
	s.Bus.Subscribe(eventbus.EventStateChanged, publisher.Handle)
	s.Bus.Subscribe(eventbus.EventDeviceRegistered, publisher.Handle)
}

// ClearState drops the stored credential and device snapshots.
func (s *Services) ClearState() error {
	for _, name := range []string{BucketCredentials, BucketSnapshots} {
		if _, err := s.KV.Delete(name); err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Poll != nil {
		s.Poll.Wait()
	}
	if s.API != nil {
		s.API.Wait()
	}
	if s.KV != nil {
		s.KV.StopCleanup()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Client != nil {
		s.Client.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
