package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusApproved  EventStatus = "approved"
	EventStatusSuspended EventStatus = "suspended"
	EventStatusRejected  EventStatus = "rejected"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPending, EventStatusApproved, EventStatusSuspended, EventStatusRejected:
		return true
	}
	return false
}

type Category string

const (
	CategoryMusic    Category = "Music"
	CategoryTech     Category = "Tech"
	CategoryBusiness Category = "Business"
	CategorySports   Category = "Sports"
	CategoryArt      Category = "Art"
	CategoryFood     Category = "Food"
	CategoryHealth   Category = "Health"
	CategoryOther    Category = "Other"
)

type TierName string

const (
	TierVIP      TierName = "VIP"
	TierPlatinum TierName = "Platinum"
	TierGold     TierName = "Gold"
	TierSilver   TierName = "Silver"
)

func (n TierName) Valid() bool {
	switch n {
	case TierVIP, TierPlatinum, TierGold, TierSilver:
		return true
	}
	return false
}

// Tier is a priced ticket category. Remaining only moves through the
// conditional decrement on purchase and the bounded increment on refund.
type Tier struct {
	Name      TierName        `json:"ticketType"`
	UnitPrice decimal.Decimal `json:"price"`
	Remaining int             `json:"quantity"`
	Allocated int             `json:"allocated"`
}

type Event struct {
	ID            string      `json:"id"`
	OrganizerID   string      `json:"organizerId"`
	Title         string      `json:"eventTitle"`
	Description   string      `json:"description"`
	Category      Category    `json:"category"`
	OtherCategory string      `json:"otherCategory,omitempty"`
	ImageURL      string      `json:"imageUrl"`
	StartDate     time.Time   `json:"startDate"`
	StartTime     string      `json:"startTime"`
	EndDate       time.Time   `json:"endDate"`
	EndTime       string      `json:"endTime,omitempty"`
	VenueName     string      `json:"venueName"`
	Address       string      `json:"address"`
	City          string      `json:"city,omitempty"`
	State         string      `json:"state,omitempty"`
	ZipCode       string      `json:"zipCode,omitempty"`
	Tiers         []Tier      `json:"tickets"`
	Status        EventStatus `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func (e *Event) Tier(name TierName) (Tier, bool) {
	for _, t := range e.Tiers {
		if t.Name == name {
			return t, true
		}
	}
	return Tier{}, false
}

// EventDetails holds the owner-editable fields of an event.
type EventDetails struct {
	Title         string
	Description   string
	Category      Category
	OtherCategory string
	ImageURL      string
	StartDate     time.Time
	StartTime     string
	EndDate       time.Time
	EndTime       string
	VenueName     string
	Address       string
	City          string
	State         string
	ZipCode       string
}

// EventFilter drives the paginated admin listing. Empty fields match all.
type EventFilter struct {
	Status   EventStatus
	Category Category
	Page     int
	Limit    int
}

func (f EventFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
