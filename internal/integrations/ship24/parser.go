package ship24

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/BearBump/TrackBatch/internal/models"
	"github.com/pkg/errors"
)

const naiveDatetimeLayout = "2006-01-02T15:04:05"

type envelope struct {
	Data struct {
		Trackings []wireTracking `json:"trackings"`
	} `json:"data"`
}

type wireTracking struct {
	Tracker struct {
		TrackingNumber string `json:"trackingNumber"`
	} `json:"tracker"`
	Shipment struct {
		StatusMilestone string `json:"statusMilestone"`
	} `json:"shipment"`
	Events []wireEvent `json:"events"`
}

type wireEvent struct {
	Status             *string `json:"status"`
	OccurrenceDatetime string  `json:"occurrenceDatetime"`
	StatusMilestone    string  `json:"statusMilestone"`
}

type tracking struct {
	number    string
	milestone string
	events    []models.Event
}

// Parse turns a success body into a TrackingInfo. It returns nil when the envelope
// holds no tracking record. Bodies that fail to decode yield an error-flagged result
// (with an empty ID), never a panic.
func Parse(body []byte) *models.TrackingInfo {
	tr, err := decode(body)
	if err != nil {
		info := models.ErrorInfo("", err.Error())
		return &info
	}
	if tr == nil {
		return nil
	}
	if len(tr.events) == 0 {
		info := models.ErrorInfo(tr.number, ErrNoTrackingData.Error())
		return &info
	}

	current := models.ParseMilestone(tr.milestone)
	timeline := buildTimeline(tr.events, current)
	highest, label := currentLabel(tr.events)

	url := TrackingPageURL + tr.number
	return &models.TrackingInfo{
		ID:       tr.number,
		Label:    label,
		Status:   highest.Name(),
		Events:   tr.events,
		Timeline: timeline,
		URL:      &url,
	}
}

func decode(body []byte) (*tracking, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ParseError{Err: err}
	}
	if len(env.Data.Trackings) == 0 {
		return nil, nil
	}

	wt := env.Data.Trackings[0]
	events := make([]models.Event, 0, len(wt.Events))
	for i, e := range wt.Events {
		at, err := parseDatetime(e.OccurrenceDatetime)
		if err != nil {
			return nil, &ParseError{Err: errors.Wrapf(err, "event %d", i)}
		}
		events = append(events, models.Event{
			Status:     e.Status,
			OccurredAt: at,
			Milestone:  e.StatusMilestone,
		})
	}
	return &tracking{
		number:    wt.Tracker.TrackingNumber,
		milestone: wt.Shipment.StatusMilestone,
		events:    events,
	}, nil
}

// parseDatetime accepts RFC3339 or a naive timestamp taken as UTC.
func parseDatetime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(naiveDatetimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.Errorf("failed to parse datetime %q", s)
	}
	return t, nil
}

// buildTimeline keeps one step per milestone, ordered by rank. Among steps of the
// same milestone the first event wins.
func buildTimeline(events []models.Event, current models.Milestone) []models.TimelineStep {
	steps := make([]models.TimelineStep, 0, len(events))
	for _, e := range events {
		m := models.ParseMilestone(e.Milestone)
		steps = append(steps, models.TimelineStep{
			Label:     stepLabel(e, m),
			Milestone: m,
		})
	}

	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Milestone.Rank() < steps[j].Milestone.Rank()
	})

	seen := make(map[models.Milestone]struct{}, len(steps))
	out := steps[:0]
	for _, s := range steps {
		if _, ok := seen[s.Milestone]; ok {
			continue
		}
		seen[s.Milestone] = struct{}{}
		out = append(out, s)
	}

	for i := range out {
		out[i].Completed = out[i].Milestone.IsCompletedAt(current)
	}
	return out
}

// currentLabel picks the first event carrying the highest milestone seen.
func currentLabel(events []models.Event) (models.Milestone, string) {
	best := 0
	highest := models.ParseMilestone(events[0].Milestone)
	for i, e := range events[1:] {
		if m := models.ParseMilestone(e.Milestone); m.Rank() > highest.Rank() {
			highest, best = m, i+1
		}
	}
	return highest, stepLabel(events[best], highest)
}

func stepLabel(e models.Event, m models.Milestone) string {
	if e.Status != nil && strings.TrimSpace(*e.Status) != "" {
		return *e.Status
	}
	return m.Phrase()
}
