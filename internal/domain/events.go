package domain

// EventType names a change published on the competition event stream.
type EventType string

const (
	EventCompetitionSelected EventType = "competition.selected"
	EventCompetitionStarted  EventType = "competition.started"
	EventCompetitionStopped  EventType = "competition.stopped"
	EventResultImproved      EventType = "result.improved"
	EventAnswerAccepted      EventType = "answer.accepted"
	EventDataReset           EventType = "data.reset"
)

// Event is the payload handed to event publishers.
type Event struct {
	Type          EventType `json:"type"`
	CompetitionID string    `json:"competitionId,omitempty"`
	User          string    `json:"user,omitempty"`
	Level         int       `json:"level,omitempty"`
	Ms            int64     `json:"ms,omitempty"`
	Timestamp     int64     `json:"timestamp"`
}
