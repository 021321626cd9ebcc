package models

import "github.com/kilamate/kilamate/internal/aqi"

// NotificationSettings is the notification state shown in the settings panel.
type NotificationSettings struct {
	Permission string `json:"permission"`
	Enabled    bool   `json:"enabled"`

	// Ready is true when an alert raised now would be delivered.
	Ready bool `json:"ready"`
}

// NotificationSettingsUpdate changes the permission, the toggle, or both.
type NotificationSettingsUpdate struct {
	Permission *string `json:"permission,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
}

// TestNotificationResult reports what happened to a test notification.
type TestNotificationResult struct {
	Outcome string `json:"outcome"`
}

// OfflineMessageResult is returned after a control message was applied.
type OfflineMessageResult struct {
	State string `json:"state"`
}

// AQIScale lists the index bands for legends.
type AQIScale struct {
	MaxIndex int        `json:"maxIndex"`
	Bands    []aqi.Band `json:"bands"`
}
