package amqp

import (
	"encoding/json"
	"time"
)

// NoticeMessage is the wire form of a user-facing error notice.
type NoticeMessage struct {
	Severity  string    `json:"severity"`
	Summary   string    `json:"summary"`
	Detail    string    `json:"detail"`
	TraceID   string    `json:"traceId,omitempty"`
	Source    string    `json:"source,omitempty"`
	LifeMs    int64     `json:"lifeMs"`
	Timestamp time.Time `json:"timestamp"`
}

// NewNoticeMessage creates a message stamped with the current time.
func NewNoticeMessage(severity, summary, detail, traceID, source string, life time.Duration) *NoticeMessage {
	return &NoticeMessage{
		Severity:  severity,
		Summary:   summary,
		Detail:    detail,
		TraceID:   traceID,
		Source:    source,
		LifeMs:    life.Milliseconds(),
		Timestamp: time.Now(),
	}
}

// Life returns how long the notice should stay visible.
func (m *NoticeMessage) Life() time.Duration {
	return time.Duration(m.LifeMs) * time.Millisecond
}

// ToJSON converts the message to JSON bytes
func (m *NoticeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NoticeMessageFromJSON creates a message from JSON bytes
func NoticeMessageFromJSON(data []byte) (*NoticeMessage, error) {
	var msg NoticeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
