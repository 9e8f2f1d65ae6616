package messages

import (
	"time"

	"github.com/BearBump/TrackBatch/internal/models"
)

// TrackingUpdated is published to the tracking.updated topic once per looked-up number.
type TrackingUpdated struct {
	BatchID   string    `json:"batch_id,omitempty"`
	CheckedAt time.Time `json:"checked_at"`

	// NextCheckAt is set by the refresher; zero for on-demand lookups.
	NextCheckAt time.Time `json:"next_check_at"`

	Tracking models.TrackingInfo `json:"tracking"`
}

func (m TrackingUpdated) Key() []byte { return []byte(m.Tracking.ID) }
