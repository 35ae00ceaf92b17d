package notifier

import "time"

const (
	TypeConnectionEstablished = "connection_established"
	TypeAuthenticate          = "authenticate"
	TypeStatus                = "status"
	TypeError                 = "error"
	TypeHeartbeat             = "heartbeat"
)

// Event is the JSON message pushed to WebSocket clients
type Event struct {
	Type       string    `json:"type"`
	DocumentID uint      `json:"documentId,omitempty"`
	Status     string    `json:"status,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Progress   *int      `json:"progress,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func StatusEvent(documentID uint, status, stage string, progress int, message string) Event {
	return Event{
		Type:       TypeStatus,
		DocumentID: documentID,
		Status:     status,
		Stage:      stage,
		Progress:   &progress,
		Message:    message,
		Timestamp:  time.Now(),
	}
}

func ErrorEvent(documentID uint, msg string) Event {
	return Event{Type: TypeError, DocumentID: documentID, Error: msg, Timestamp: time.Now()}
}

func HeartbeatEvent() Event {
	return Event{Type: TypeHeartbeat, Timestamp: time.Now()}
}

func ConnectionEstablishedEvent(documentID uint) Event {
	return Event{Type: TypeConnectionEstablished, DocumentID: documentID, Timestamp: time.Now()}
}
