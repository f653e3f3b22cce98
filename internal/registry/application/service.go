package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"time"

	"github.com/pborman/uuid"

	"tankfleet-cloud/internal/auth"
	"tankfleet-cloud/internal/events"
	"tankfleet-cloud/internal/notify"
	"tankfleet-cloud/internal/observability/metrics"
	registry "tankfleet-cloud/internal/registry/domain"
	schedule "tankfleet-cloud/internal/schedule/domain"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Registration is the result of a successful register call.
type Registration struct {
	TankID  string `json:"tank_id"`
	Name    string `json:"name"`
	Token   string `json:"token"`
	Created bool   `json:"created"`
}

/// Service issues tank identities. Registration is idempotent by name: the
// same (name, key) pair always maps to the same tank, and the token only
// rotates once the previous one has expired.
type Service struct {
	tanks    registry.TankRepository
	settings schedule.Repository
	recorder events.Recorder
	notifier notify.Notifier
	psk      string
	secret   []byte
	tokenTTL time.Duration
	clock    Clock
	logger   *log.Logger
}

// NewService constructs a registry service.
func NewService(tanks registry.TankRepository, settings schedule.Repository, recorder events.Recorder, notifier notify.Notifier, psk string, secret []byte, tokenTTL time.Duration, clock Clock, logger *log.Logger) (*Service, error) {
	if tanks == nil {
		return nil, errors.New("registry service: nil tank repo")
	}
	if settings == nil {
		return nil, errors.New("registry service: nil settings repo")
	}
	if recorder == nil {
		return nil, errors.New("registry service: nil event recorder")
	}
	if psk == "" {
		return nil, errors.New("registry service: empty pre-shared key")
	}
	if len(secret) == 0 {
		return nil, errors.New("registry service: empty token secret")
	}
	if tokenTTL <= 0 {
		return nil, errors.New("registry service: non-positive token ttl")
	}
	if clock == nil {
		return nil, errors.New("registry service: nil clock")
	}
	return &Service{
		tanks:    tanks,
		settings: settings,
		recorder: recorder,
		notifier: notifier,
		psk:      psk,
		secret:   secret,
		tokenTTL: tokenTTL,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Register validates the fleet pre-shared key and returns the tank's
// identity and token, creating the tank on first contact. A bad key is
// rejected identically for known and unknown names.
func (s *Service) Register(ctx context.Context, name, key string) (*Registration, error) {
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.psk)) != 1 {
		return nil, auth.ErrInvalidKey
	}
	if name == "" {
		return nil, registry.ErrNameRequired
	}

	now := s.clock.Now().UTC()
	existing, err := s.tanks.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		token := existing.Token
		if auth.TokenExpired(token, s.secret, now) {
			token, err = auth.MintDeviceToken(s.secret, existing.ID, existing.Name, now, s.tokenTTL)
			if err != nil {
				return nil, err
			}
			if err := s.tanks.UpdateToken(ctx, existing.ID, token, now); err != nil {
				return nil, err
			}
		}
		metrics.IncRegistration()
		return &Registration{TankID: existing.ID, Name: existing.Name, Token: token}, nil
	}

	tankID := uuid.New()
	token, err := auth.MintDeviceToken(s.secret, tankID, name, now, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	tank := &registry.Tank{
		ID:            tankID,
		Name:          name,
		Token:         token,
		TokenIssuedAt: now,
		LastSeenAt:    now,
		IsOnline:      true,
		CreatedAt:     now,
	}
	if err := s.tanks.Create(ctx, tank); err != nil {
		if errors.Is(err, registry.ErrNameTaken) {
			// Lost a registration race; the winner's identity stands.
			return s.Register(ctx, name, key)
		}
		return nil, err
	}

	defaults := schedule.DefaultSettings(tankID)
	defaults.UpdatedAt = now
	if err := s.settings.Save(ctx, &defaults); err != nil {
		return nil, err
	}

	if err := s.recorder.Record(ctx, events.Event{
		TankID:    tankID,
		Type:      events.TypeRegistered,
		Source:    "node",
		Detail:    name,
		CreatedAt: now,
	}); err != nil && s.logger != nil {
		s.logger.Printf("registry: record event error: %v", err)
	}
	s.sendNotification(ctx, notify.Message{
		Kind:     notify.KindRegistered,
		TankID:   tankID,
		TankName: name,
		At:       now,
	})
	metrics.IncRegistration()

	return &Registration{TankID: tankID, Name: name, Token: token, Created: true}, nil
}

// GetTank returns one tank by id.
func (s *Service) GetTank(ctx context.Context, tankID string) (*registry.Tank, error) {
	tank, err := s.tanks.GetByID(ctx, tankID)
	if err != nil {
		return nil, err
	}
	if tank == nil {
		return nil, registry.ErrTankNotFound
	}
	return tank, nil
}

// ListTanks returns all tanks.
func (s *Service) ListTanks(ctx context.Context) ([]registry.Tank, error) {
	return s.tanks.ListAll(ctx)
}

func (s *Service) sendNotification(ctx context.Context, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil && s.logger != nil {
		s.logger.Printf("registry: notify error: %v", err)
	}
}
