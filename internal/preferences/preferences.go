// Package preferences holds the user's display and notification settings.
package preferences

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilamate/kilamate/internal/notify"
	"github.com/kilamate/kilamate/internal/units"
)

// StorageKey is the key preferences are persisted under.
const StorageKey = "weather-preferences"

// ErrUnsupportedLanguage is returned for a language without translations.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Languages lists the supported UI languages. The first is the fallback.
var Languages = []string{"en", "hi", "ur"}

// Preferences is the persisted settings document.
type Preferences struct {
	TemperatureUnit units.TemperatureUnit `json:"temperatureUnit"`
	WindSpeedUnit   units.WindSpeedUnit   `json:"windSpeedUnit"`
	Language        string                `json:"language"`

	NotificationsEnabled   bool              `json:"notificationsEnabled"`
	NotificationPermission notify.Permission `json:"notificationPermission"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Defaults returns the settings of a first visit.
func Defaults() Preferences {
	return Preferences{
		TemperatureUnit:        units.Celsius,
		WindSpeedUnit:          units.KilometresPerHour,
		Language:               Languages[0],
		NotificationsEnabled:   false,
		NotificationPermission: notify.PermissionDefault,
	}
}

// normalize fills zero fields from Defaults, so documents written by older
// versions stay usable.
func (p Preferences) normalize() Preferences {
	d := Defaults()
	if p.TemperatureUnit == "" {
		p.TemperatureUnit = d.TemperatureUnit
	}
	if p.WindSpeedUnit == "" {
		p.WindSpeedUnit = d.WindSpeedUnit
	}
	if p.Language == "" {
		p.Language = d.Language
	}
	if p.NotificationPermission == "" {
		p.NotificationPermission = d.NotificationPermission
	}
	return p
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	TemperatureUnit      *string `json:"temperatureUnit,omitempty"`
	WindSpeedUnit        *string `json:"windSpeedUnit,omitempty"`
	Language             *string `json:"language,omitempty"`
	NotificationsEnabled *bool   `json:"notificationsEnabled,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.TemperatureUnit == nil && p.WindSpeedUnit == nil &&
		p.Language == nil && p.NotificationsEnabled == nil
}

// Apply returns prefs with the patch applied. Nothing is applied if any field
// is invalid.
func (p Patch) Apply(prefs Preferences) (Preferences, error) {
	if p.TemperatureUnit != nil {
		u, err := units.ParseTemperatureUnit(*p.TemperatureUnit)
		if err != nil {
			return Preferences{}, err
		}
		prefs.TemperatureUnit = u
	}
	if p.WindSpeedUnit != nil {
		u, err := units.ParseWindSpeedUnit(*p.WindSpeedUnit)
		if err != nil {
			return Preferences{}, err
		}
		prefs.WindSpeedUnit = u
	}
	if p.Language != nil {
		lang, err := ParseLanguage(*p.Language)
		if err != nil {
			return Preferences{}, err
		}
		prefs.Language = lang
	}
	if p.NotificationsEnabled != nil {
		prefs.NotificationsEnabled = *p.NotificationsEnabled
	}
	return prefs, nil
}

// ParseLanguage validates a language code. Region subtags are dropped, so
// "hi-IN" selects "hi".
func ParseLanguage(s string) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	for _, l := range Languages {
		if l == lang {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
}
