package events

import (
	"sync"

	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
)

type InMemoryEventStore struct {
	streams     map[string][]Event
	subscribers map[string][]EventHandler
	mutex       sync.RWMutex
	position    int
	allEvents   []Event

	log *logger.Logger

	// inFlight counts running handlers; idle is signalled when it drops to zero
	dispatchMu sync.Mutex
	idle       *sync.Cond
	inFlight   int
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return NewInMemoryEventStoreWithLogger(logger.Discard())
}

// NewInMemoryEventStoreWithLogger reports handler failures through log
func NewInMemoryEventStoreWithLogger(log *logger.Logger) *InMemoryEventStore {
	s := &InMemoryEventStore{
		streams:     make(map[string][]Event),
		subscribers: make(map[string][]EventHandler),
		allEvents:   make([]Event, 0),
		log:         log,
	}
	s.idle = sync.NewCond(&s.dispatchMu)
	return s
}

func (s *InMemoryEventStore) AppendEvent(streamID string, event Event) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	eventWithVersion := sequenced(event, streamID, len(s.streams[streamID])+1)

	s.streams[streamID] = append(s.streams[streamID], eventWithVersion)
	s.allEvents = append(s.allEvents, eventWithVersion)
	s.position++

	for _, handler := range s.subscribers[event.Type()] {
		if !handler.CanHandle(event.Type()) {
			continue
		}
		s.dispatchMu.Lock()
		s.inFlight++
		s.dispatchMu.Unlock()
		go func(h EventHandler, e Event) {
			defer s.handlerDone()
			if err := h.Handle(e); err != nil {
				s.log.Error("event_handler_failed",
					"event_type", e.Type(),
					"stream_id", e.StreamID(),
					"error", err.Error(),
				)
			}
		}(handler, eventWithVersion)
	}

	return nil
}

func (s *InMemoryEventStore) ReadEvents(streamID string, fromVersion int) ([]Event, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	events, exists := s.streams[streamID]
	if !exists {
		return []Event{}, nil
	}

	if fromVersion < 1 {
		fromVersion = 1
	}

	if fromVersion > len(events) {
		return []Event{}, nil
	}

	out := make([]Event, len(events)-fromVersion+1)
	copy(out, events[fromVersion-1:])
	return out, nil
}

func (s *InMemoryEventStore) ReadAllEvents(fromPosition int) ([]Event, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if fromPosition < 0 {
		fromPosition = 0
	}

	if fromPosition >= len(s.allEvents) {
		return []Event{}, nil
	}

	out := make([]Event, len(s.allEvents)-fromPosition)
	copy(out, s.allEvents[fromPosition:])
	return out, nil
}

func (s *InMemoryEventStore) Subscribe(eventTypes []string, handler EventHandler) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, eventType := range eventTypes {
		s.subscribers[eventType] = append(s.subscribers[eventType], handler)
	}

	return nil
}

func (s *InMemoryEventStore) Unsubscribe(handler EventHandler) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for eventType, handlers := range s.subscribers {
		kept := make([]EventHandler, 0, len(handlers))
		for _, h := range handlers {
			if h != handler {
				kept = append(kept, h)
			}
		}
		s.subscribers[eventType] = kept
	}

	return nil
}

func (s *InMemoryEventStore) handlerDone() {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.inFlight--
	if s.inFlight == 0 {
		s.idle.Broadcast()
	}
}

// Drain blocks until no dispatched handler is running. Appends may continue
// while it waits; it returns at the first moment nothing is in flight.
func (s *InMemoryEventStore) Drain() {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	for s.inFlight > 0 {
		s.idle.Wait()
	}
}
