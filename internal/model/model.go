package model

import "time"

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
	SlotCancelled SlotStatus = "CANCELLED"
	SlotExpired   SlotStatus = "EXPIRED"
)

type ParticipantType string

const (
	ParticipantUser      ParticipantType = "user"
	ParticipantCandidate ParticipantType = "candidate"
)

// BusySourceInternal tags busy intervals that come from this engine's own
// booked slots, as opposed to a named external calendar provider.
const BusySourceInternal = "internal"

type Participant struct {
	Type  ParticipantType `json:"type"`
	ID    string          `json:"id"`
	Email string          `json:"email,omitempty"`
	Phone string          `json:"phone,omitempty"`
}

// WorkingHoursEntry is one recurring weekly window in the owner's local time.
type WorkingHoursEntry struct {
	Weekday    int    `json:"weekday"` // 0 = Sunday
	StartLocal string `json:"start_local"`
	EndLocal   string `json:"end_local"`
}

type WorkingHoursPattern struct {
	ID            string
	TenantID      string
	OwnerID       string // person id, or empty for the tenant default
	Timezone      string // IANA zone name
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	Entries       []WorkingHoursEntry
}

type SchedulingRule struct {
	ID               string
	TenantID         string
	MinNoticeMins    int
	BufferBeforeMins int
	BufferAfterMins  int
	DefaultSlotMins  int
	AllowOverlapping bool
	IsDefault        bool
}

// BusyInterval is one raw unavailable range for a person, UTC instants.
type BusyInterval struct {
	Start  time.Time
	End    time.Time
	Source string // BusySourceInternal or an external provider name
	Reason string
}

type Slot struct {
	ID           string
	TenantID     string
	InterviewID  string
	Participants []Participant
	StartAt      time.Time
	EndAt        time.Time
	Timezone     string // display timezone, informational only
	Status       SlotStatus
	CancelReason string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// CalendarAccount links a person to one external calendar.
type CalendarAccount struct {
	ID         string
	PersonID   string
	Provider   string // e.g. "google"
	CalendarID string
	Token      []byte // provider OAuth token blob
	Revoked    bool
}
