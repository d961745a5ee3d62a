package sync

import "time"

const (
	TypeWelcome     = "welcome"
	TypeAdsSettings = "settings.ads"
)

// SettingsEvent is pushed to every connected client when the ads toggle flips.
type SettingsEvent struct {
	Type    string    `json:"type"`
	Enabled bool      `json:"enabled"`
	At      time.Time `json:"at"`
}

func NewAdsEvent(enabled bool, at time.Time) SettingsEvent {
	return SettingsEvent{Type: TypeAdsSettings, Enabled: enabled, At: at.UTC()}
}

type WelcomeEvent struct {
	Type      string `json:"type"`
	Transport string `json:"transport"`
	Clients   int    `json:"clients"`
	// AdsEnabled lets a late joiner start from the current toggle value.
	AdsEnabled bool `json:"ads_enabled"`
}
