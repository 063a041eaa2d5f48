package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vsinha/forgetrace/pkg/domain/entities"
)

type recordingHandler struct {
	mu     sync.Mutex
	seen   []Event
	accept string
	fail   bool
}

func (h *recordingHandler) Handle(event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, event)
	if h.fail {
		return errors.New("handler failed")
	}
	return nil
}

func (h *recordingHandler) CanHandle(eventType string) bool {
	return h.accept == "" || h.accept == eventType
}

func TestInMemoryEventStore_VersionsPerStream(t *testing.T) {
	store := NewInMemoryEventStore()
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	batch := &entities.StageBatch{ID: 4, Tenant: 1, Kind: entities.StageForge, Type: entities.BatchFresh}
	_ = store.AppendEvent(BatchStream(1, 4), NewBatchCreatedEvent(batch, at))
	_ = store.AppendEvent(HeatStream(1, 9), NewHeatConsumedEvent(1, HeatMovement{HeatID: 9, BatchID: 4, Amount: "60", Available: "40"}, at))
	_ = store.AppendEvent(BatchStream(1, 4), NewBatchStartedEvent(batch, at))

	events, err := store.ReadEvents(BatchStream(1, 4), 1)
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 batch events, got %d", len(events))
	}
	if events[0].Type() != BatchCreatedEvent || events[1].Type() != BatchStartedEvent {
		t.Errorf("Expected created then started, got %s then %s", events[0].Type(), events[1].Type())
	}
	if events[0].Tenant() != 1 {
		t.Errorf("Expected tenant 1, got %d", events[0].Tenant())
	}
	if events[1].Version() != 2 {
		t.Errorf("Expected version 2, got %d", events[1].Version())
	}
	if !events[0].Timestamp().Equal(at) {
		t.Errorf("Expected timestamp %v, got %v", at, events[0].Timestamp())
	}

	all, _ := store.ReadAllEvents(1)
	if len(all) != 2 || all[0].StreamID() != "tenant/1/heat/9" {
		t.Errorf("Expected heat event at position 1, got %+v", all)
	}

	later, _ := store.ReadEvents(BatchStream(1, 4), 3)
	if len(later) != 0 {
		t.Errorf("Expected no events past the stream head, got %d", len(later))
	}
}

func TestInMemoryEventStore_ReworkBatchEventType(t *testing.T) {
	batch := &entities.StageBatch{ID: 2, Tenant: 1, Kind: entities.StageMachining, Type: entities.BatchRework, UpstreamAllocationID: 5}
	event := NewBatchCreatedEvent(batch, time.Now())

	if event.Type() != ReworkOpenedEvent {
		t.Errorf("Expected %s, got %s", ReworkOpenedEvent, event.Type())
	}
	data, ok := event.Data().(BatchCreated)
	if !ok || data.Upstream != 5 {
		t.Errorf("Expected upstream 5 in payload, got %+v", event.Data())
	}
}

func TestInMemoryEventStore_Subscribers(t *testing.T) {
	store := NewInMemoryEventStore()
	completed := &recordingHandler{accept: BatchCompletedEvent}
	failing := &recordingHandler{fail: true}

	_ = store.Subscribe([]string{BatchCompletedEvent}, completed)
	_ = store.Subscribe([]string{BatchCompletedEvent, BatchStartedEvent}, failing)

	batch := &entities.StageBatch{ID: 1, Tenant: 1, Kind: entities.StageForge}
	allocation := &entities.ProcessedItemAllocation{ID: 1, Tenant: 1, CompletedPiecesCount: 8, RejectedPiecesCount: 2}
	_ = store.AppendEvent(BatchStream(1, 1), NewBatchStartedEvent(batch, time.Now()))
	_ = store.AppendEvent(BatchStream(1, 1), NewBatchCompletedEvent(batch, allocation, time.Now()))
	store.Drain()

	if len(completed.seen) != 1 {
		t.Fatalf("Expected 1 completed event, got %d", len(completed.seen))
	}
	outcome := completed.seen[0].Data().(BatchCompleted).Outcome
	if outcome.Total() != 10 {
		t.Errorf("Expected outcome total 10, got %d", outcome.Total())
	}
	if len(failing.seen) != 2 {
		t.Errorf("Expected failing handler to still see 2 events, got %d", len(failing.seen))
	}

	_ = store.Unsubscribe(completed)
	_ = store.AppendEvent(BatchStream(1, 1), NewBatchCompletedEvent(batch, allocation, time.Now()))
	store.Drain()
	if len(completed.seen) != 1 {
		t.Errorf("Expected unsubscribed handler to see nothing new, got %d", len(completed.seen))
	}
}

func TestInMemoryEventStore_DrainWhileAppending(t *testing.T) {
	store := NewInMemoryEventStore()
	handler := &recordingHandler{}
	_ = store.Subscribe([]string{BatchStartedEvent}, handler)

	const appends = 200
	batch := &entities.StageBatch{ID: 1, Tenant: 1, Kind: entities.StageForge}
	var appenders, drainers sync.WaitGroup
	stop := make(chan struct{})

	drainers.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer drainers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					store.Drain()
				}
			}
		}()
	}

	appenders.Add(4)
	for i := 0; i < 4; i++ {
		go func() {
			defer appenders.Done()
			for j := 0; j < appends/4; j++ {
				_ = store.AppendEvent(BatchStream(1, 1), NewBatchStartedEvent(batch, time.Now()))
			}
		}()
	}

	appenders.Wait()
	close(stop)
	drainers.Wait()
	store.Drain()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.seen) != appends {
		t.Errorf("Expected %d handled events after the final drain, got %d", appends, len(handler.seen))
	}
	events, _ := store.ReadEvents(BatchStream(1, 1), 1)
	if len(events) != appends {
		t.Errorf("Expected %d stored events, got %d", appends, len(events))
	}
}
