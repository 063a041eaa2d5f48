package events

import (
	"time"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

// Event is an immutable fact recorded after a unit of work commits
type Event interface {
	Type() string
	StreamID() string
	Tenant() entities.TenantID
	Data() interface{}
	Timestamp() time.Time
	Version() int
}

// EventHandler reacts to appended events. Each call runs on its own goroutine.
type EventHandler interface {
	Handle(event Event) error
	CanHandle(eventType string) bool
}

// EventStore keeps one ordered stream per heat, batch and allocation
type EventStore interface {
	AppendEvent(streamID string, event Event) error
	ReadEvents(streamID string, fromVersion int) ([]Event, error)
	ReadAllEvents(fromPosition int) ([]Event, error)
	Subscribe(eventTypes []string, handler EventHandler) error
	Unsubscribe(handler EventHandler) error
}

// Record is the stored form of every event
type Record struct {
	EventType string            `json:"type"`
	Stream    string            `json:"stream"`
	TenantID  entities.TenantID `json:"tenant_id"`
	Payload   interface{}       `json:"data"`
	At        time.Time         `json:"at"`
	Seq       int               `json:"version"`
}

func (r Record) Type() string              { return r.EventType }
func (r Record) StreamID() string          { return r.Stream }
func (r Record) Tenant() entities.TenantID { return r.TenantID }
func (r Record) Data() interface{}         { return r.Payload }
func (r Record) Timestamp() time.Time      { return r.At }
func (r Record) Version() int              { return r.Seq }

// newRecord builds an unsequenced event; the store assigns its stream version
func newRecord(eventType string, tenant entities.TenantID, stream string, data interface{}, at time.Time) Event {
	return Record{
		EventType: eventType,
		Stream:    stream,
		TenantID:  tenant,
		Payload:   data,
		At:        at,
	}
}

// sequenced copies event as the version-th entry of stream
func sequenced(event Event, stream string, version int) Record {
	return Record{
		EventType: event.Type(),
		Stream:    stream,
		TenantID:  event.Tenant(),
		Payload:   event.Data(),
		At:        event.Timestamp(),
		Seq:       version,
	}
}
