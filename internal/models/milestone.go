package models

// Milestone: нормализованный этап доставки. Порядок констант задаёт ранг.
type Milestone int

const (
	MilestonePending Milestone = iota
	MilestoneInfoReceived
	MilestoneInTransit
	MilestoneOutForDelivery
	MilestoneFailedAttempt
	MilestoneAvailableForPickup
	MilestoneDelivered
	MilestoneException
)

// Milestones lists every milestone in rank order.
var Milestones = []Milestone{
	MilestonePending,
	MilestoneInfoReceived,
	MilestoneInTransit,
	MilestoneOutForDelivery,
	MilestoneFailedAttempt,
	MilestoneAvailableForPickup,
	MilestoneDelivered,
	MilestoneException,
}

// ParseMilestone maps a provider statusMilestone string. Unknown values are Pending.
func ParseMilestone(s string) Milestone {
	switch s {
	case "pending":
		return MilestonePending
	case "info_received":
		return MilestoneInfoReceived
	case "in_transit":
		return MilestoneInTransit
	case "out_for_delivery":
		return MilestoneOutForDelivery
	case "failed_attempt":
		return MilestoneFailedAttempt
	case "available_for_pickup":
		return MilestoneAvailableForPickup
	case "delivered":
		return MilestoneDelivered
	case "exception":
		return MilestoneException
	default:
		return MilestonePending
	}
}

func (m Milestone) Rank() int { return int(m) }

// Code is the provider spelling, the inverse of ParseMilestone.
func (m Milestone) Code() string {
	switch m {
	case MilestoneInfoReceived:
		return "info_received"
	case MilestoneInTransit:
		return "in_transit"
	case MilestoneOutForDelivery:
		return "out_for_delivery"
	case MilestoneFailedAttempt:
		return "failed_attempt"
	case MilestoneAvailableForPickup:
		return "available_for_pickup"
	case MilestoneDelivered:
		return "delivered"
	case MilestoneException:
		return "exception"
	default:
		return "pending"
	}
}

// Name is the short display name.
func (m Milestone) Name() string {
	switch m {
	case MilestoneInfoReceived:
		return "Information Received"
	case MilestoneInTransit:
		return "In Transit"
	case MilestoneOutForDelivery:
		return "Out for Delivery"
	case MilestoneFailedAttempt:
		return "Failed Attempt"
	case MilestoneAvailableForPickup:
		return "Available for Pickup"
	case MilestoneDelivered:
		return "Delivered"
	case MilestoneException:
		return "Exception"
	default:
		return "Pending"
	}
}

// Phrase is the canonical sentence used when an event carries no status text.
func (m Milestone) Phrase() string {
	switch m {
	case MilestoneInfoReceived:
		return "Package information received"
	case MilestoneInTransit:
		return "Package is in transit"
	case MilestoneOutForDelivery:
		return "Package is out for delivery"
	case MilestoneFailedAttempt:
		return "Delivery attempt failed"
	case MilestoneAvailableForPickup:
		return "Package is available for pickup"
	case MilestoneDelivered:
		return "Package has been delivered"
	case MilestoneException:
		return "Package has an exception"
	default:
		return "Package status is pending"
	}
}

func (m Milestone) String() string { return m.Name() }

// IsCompletedAt reports whether step m is done for a shipment currently at current.
// Delivered shipments have every step completed.
func (m Milestone) IsCompletedAt(current Milestone) bool {
	if current == MilestoneDelivered {
		return true
	}
	return m.Rank() < current.Rank()
}
