package refresher

import (
	"math/rand"
	"time"

	"github.com/BearBump/TrackBatch/internal/models"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	DeliveredDelay time.Duration // default: 365 days

	InTransitMinDelay time.Duration // default: 30 minutes
	InTransitMaxDelay time.Duration // default: 120 minutes

	UnknownDelay time.Duration // default: 90 minutes

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		DeliveredDelay: 365 * 24 * time.Hour,

		InTransitMinDelay: 30 * time.Minute,
		InTransitMaxDelay: 120 * time.Minute,

		UnknownDelay: 90 * time.Minute,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

// Planner decides when a saved number is looked up again.
type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	if cfg.DeliveredDelay <= 0 {
		cfg.DeliveredDelay = def.DeliveredDelay
	}
	if cfg.InTransitMinDelay <= 0 {
		cfg.InTransitMinDelay = def.InTransitMinDelay
	}
	if cfg.InTransitMaxDelay <= 0 {
		cfg.InTransitMaxDelay = def.InTransitMaxDelay
	}
	if cfg.InTransitMaxDelay < cfg.InTransitMinDelay {
		cfg.InTransitMaxDelay = cfg.InTransitMinDelay
	}
	if cfg.UnknownDelay <= 0 {
		cfg.UnknownDelay = def.UnknownDelay
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

func (p *Planner) Config() PlannerConfig { return p.cfg }

// Next returns the delay until the next lookup. failCount is the number of
// consecutive error results including info, if it is one.
func (p *Planner) Next(info models.TrackingInfo, failCount int) time.Duration {
	if info.HasError {
		return p.BackoffDelay(failCount)
	}
	return p.NextCheckDelay(highestMilestone(info))
}

func (p *Planner) NextCheckDelay(m models.Milestone) time.Duration {
	switch m {
	case models.MilestoneDelivered:
		return p.cfg.DeliveredDelay
	case models.MilestonePending:
		return p.cfg.UnknownDelay
	default:
		min := p.cfg.InTransitMinDelay
		max := p.cfg.InTransitMaxDelay
		if max == min {
			return min
		}
		secMin := int(min.Seconds())
		secMax := int(max.Seconds())
		if secMin < 0 {
			secMin = 0
		}
		if secMax < secMin {
			secMax = secMin
		}
		return time.Duration(secMin+p.r.Intn(secMax-secMin+1)) * time.Second
	}
}

func (p *Planner) BackoffDelay(failCount int) time.Duration {
	switch {
	case failCount <= 1:
		return p.cfg.Backoff1
	case failCount == 2:
		return p.cfg.Backoff2
	case failCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}

// timeline is sorted by rank, so the last step holds the highest milestone
func highestMilestone(info models.TrackingInfo) models.Milestone {
	if len(info.Timeline) == 0 {
		return models.MilestonePending
	}
	return info.Timeline[len(info.Timeline)-1].Milestone
}
