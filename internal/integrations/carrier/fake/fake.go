package fake

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"
	"time"

	"github.com/BearBump/TrackBatch/internal/integrations/ship24"
	"github.com/BearBump/TrackBatch/internal/models"
)

// FakeClient: офлайн-заглушка Ship24: отдаёт конверты того же формата.
// Статус детерминирован по номеру: хэш выбирает, до какого этапа дошла посылка.
// Номера с префиксом INVALID и NODATA отдают соответствующие ошибки.
type FakeClient struct {
	now func() time.Time
}

func New() *FakeClient { return &FakeClient{now: time.Now} }

// путь посылки; последний элемент может быть delivered
var path = []models.Milestone{
	models.MilestoneInfoReceived,
	models.MilestoneInTransit,
	models.MilestoneInTransit,
	models.MilestoneOutForDelivery,
	models.MilestoneDelivered,
}

type fakeEvent struct {
	Status             *string `json:"status,omitempty"`
	OccurrenceDatetime string  `json:"occurrenceDatetime"`
	StatusMilestone    string  `json:"statusMilestone"`
}

func (f *FakeClient) Fetch(ctx context.Context, trackingNumber string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ship24.NetworkError{Err: err}
	}
	upper := strings.ToUpper(trackingNumber)
	switch {
	case strings.HasPrefix(upper, "INVALID"):
		return nil, &ship24.InvalidTrackingNumberError{Number: trackingNumber, Code: "tracker_not_found"}
	case strings.HasPrefix(upper, "NODATA"):
		return nil, ship24.ErrNoTrackingData
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(trackingNumber))
	steps := int(h.Sum32()%uint32(len(path))) + 1

	base := f.now().UTC().Add(-time.Duration(steps) * 24 * time.Hour).Truncate(time.Second)
	events := make([]fakeEvent, 0, steps)
	// провайдер отдаёт свежие события первыми
	for i := steps - 1; i >= 0; i-- {
		m := path[i]
		ev := fakeEvent{
			OccurrenceDatetime: base.Add(time.Duration(i) * 24 * time.Hour).Format(time.RFC3339),
			StatusMilestone:    m.Code(),
		}
		if i%2 == 0 {
			s := "Fake carrier: " + m.Name()
			ev.Status = &s
		}
		events = append(events, ev)
	}

	body := map[string]any{
		"data": map[string]any{
			"trackings": []any{map[string]any{
				"tracker":  map[string]any{"trackingNumber": trackingNumber},
				"shipment": map[string]any{"statusMilestone": path[steps-1].Code()},
				"events":   events,
			}},
		},
	}
	return json.Marshal(body)
}
