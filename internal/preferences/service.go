package preferences

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/notify"
)

// ServiceConfig holds configuration for the preferences service.
type ServiceConfig struct {
	Store  Store
	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// Service reads and updates preferences. It serialises writers so that
// concurrent patches do not lose fields.
type Service struct {
	store  Store
	clock  clockwork.Clock
	logger zerolog.Logger

	mu sync.Mutex
}

// NewService creates a new preferences service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:  cfg.Store,
		clock:  clock,
		logger: cfg.Logger,
	}
}

// Get returns the current preferences.
func (s *Service) Get(ctx context.Context) (Preferences, error) {
	return s.store.Load(ctx)
}

// Update applies a patch and persists the result.
func (s *Service) Update(ctx context.Context, patch Patch) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.store.Load(ctx)
	if err != nil {
		return Preferences{}, err
	}
	if patch.Empty() {
		return prefs, nil
	}

	updated, err := patch.Apply(prefs)
	if err != nil {
		return Preferences{}, err
	}
	updated.UpdatedAt = s.clock.Now().UTC()

	if err := s.store.Save(ctx, updated); err != nil {
		return Preferences{}, err
	}

	s.logger.Info().
		Str("temperature_unit", string(updated.TemperatureUnit)).
		Str("wind_speed_unit", string(updated.WindSpeedUnit)).
		Str("language", updated.Language).
		Bool("notifications_enabled", updated.NotificationsEnabled).
		Msg("preferences updated")

	return updated, nil
}

// SetPermission records the notification permission the user granted or
// denied. Granting also enables notifications, as accepting the browser
// prompt does.
func (s *Service) SetPermission(ctx context.Context, perm notify.Permission) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.store.Load(ctx)
	if err != nil {
		return Preferences{}, err
	}

	prefs.NotificationPermission = perm
	if perm == notify.PermissionGranted {
		prefs.NotificationsEnabled = true
	}
	prefs.UpdatedAt = s.clock.Now().UTC()

	if err := s.store.Save(ctx, prefs); err != nil {
		return Preferences{}, err
	}

	s.logger.Info().Str("permission", string(perm)).Msg("notification permission changed")
	return prefs, nil
}

// Permission implements notify.PermissionSource. Load failures read as
// PermissionDefault.
func (s *Service) Permission(ctx context.Context) notify.Permission {
	prefs, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load notification permission")
		return notify.PermissionDefault
	}
	return prefs.NotificationPermission
}

// NotificationsEnabled implements notify.PermissionSource.
func (s *Service) NotificationsEnabled(ctx context.Context) bool {
	prefs, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load notification settings")
		return false
	}
	return prefs.NotificationsEnabled
}
