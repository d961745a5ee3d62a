package models

import "time"

// ClickState is the persisted funnel progress for one visitor and content id.
type ClickState struct {
	Count         int   `json:"count"`
	LastUpdatedAt int64 `json:"last_updated_at"` // unix millis
}

func (s ClickState) Expired(now time.Time, window time.Duration) bool {
	if s.LastUpdatedAt == 0 {
		return false
	}
	return now.UnixMilli()-s.LastUpdatedAt > window.Milliseconds()
}
