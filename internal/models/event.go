package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageCommittedEvent публикуется после успешной записи сообщения.
type MessageCommittedEvent struct {
	EventID    string     `json:"event_id"`
	RecordID   uuid.UUID  `json:"record_id"`
	StudentID  string     `json:"student_id"`
	TeacherID  string     `json:"teacher_id"`
	Progress   Progress   `json:"progress"`
	TopicID    *uuid.UUID `json:"topic_id,omitempty"`
	ImageCount int        `json:"image_count"`
	Source     string     `json:"source"` // template, service, fallback, manual
	Timestamp  time.Time  `json:"timestamp"`
}
