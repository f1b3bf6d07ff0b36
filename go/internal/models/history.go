package models

import "fmt"

// HistoryEventType identifies the kind of history record
type HistoryEventType string

const (
	HistoryExchange         HistoryEventType = "EXCHANGE"
	HistoryLeadershipChange HistoryEventType = "LEADERSHIP_CHANGE"
)

// HistoryEvent is an append-only record of an exchange or leadership change.
// Records are keyed by (type, timestamp, subject id) so a replayed delivery
// cannot insert the same record twice.
type HistoryEvent struct {
	Type        HistoryEventType `json:"type"`
	Timestamp   string           `json:"timestamp"`
	SubjectID   string           `json:"subjectId"`
	SubjectName string           `json:"subjectName,omitempty"`
	RoundNumber int              `json:"roundNumber,omitempty"`
	FromRoom    RoomColor        `json:"fromRoom,omitempty"`
	ToRoom      RoomColor        `json:"toRoom,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

// Key returns the dedup identity of the record
func (h HistoryEvent) Key() string {
	return fmt.Sprintf("%s|%s|%s", h.Type, h.Timestamp, h.SubjectID)
}
