package events

import "github.com/vsinha/forgetrace/pkg/infrastructure/logger"

// AllEventTypes lists every event type the engine and ledger append
var AllEventTypes = []string{
	HeatReceivedEvent, HeatConsumedEvent, HeatReturnedEvent,
	BatchCreatedEvent, BatchStartedEvent, BatchCompletedEvent, BatchDeletedEvent,
	AllocationCreatedEvent, AllocationConsumedEvent, ReworkOpenedEvent,
}

// AuditLog writes each event it receives to the structured log
type AuditLog struct {
	log *logger.Logger
}

// NewAuditLog creates an audit handler writing to log
func NewAuditLog(log *logger.Logger) *AuditLog {
	return &AuditLog{log: log}
}

// Subscribe registers the audit log for every event type on store
func (a *AuditLog) Subscribe(store EventStore) error {
	return store.Subscribe(AllEventTypes, a)
}

func (a *AuditLog) CanHandle(string) bool { return true }

func (a *AuditLog) Handle(event Event) error {
	a.log.DomainEvent(event.Type(), event.StreamID(), int64(event.Tenant()), event.Version())
	return nil
}
