package entities

import (
	"fmt"
	"time"

	"github.com/vsinha/forgetrace/pkg/domain/apperr"
)

// ResourceKind is the kind of shop-floor resource a batch runs on
type ResourceKind int

const (
	ForgeLine ResourceKind = iota
	Furnace
	MachineSet
	Gauge
	DispatchBay
)

// String method for ResourceKind enum
func (k ResourceKind) String() string {
	switch k {
	case ForgeLine:
		return "ForgeLine"
	case Furnace:
		return "Furnace"
	case MachineSet:
		return "MachineSet"
	case Gauge:
		return "Gauge"
	case DispatchBay:
		return "DispatchBay"
	default:
		return "Unknown"
	}
}

// ParseResourceKind parses the String form of a ResourceKind
func ParseResourceKind(s string) (ResourceKind, error) {
	for k := ForgeLine; k <= DispatchBay; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return ForgeLine, fmt.Errorf("unknown resource kind %q", s)
}

// ResourceStatus says whether a resource is free to take a new batch
type ResourceStatus int

const (
	ResourceIdle ResourceStatus = iota
	ResourceBusy
)

// String method for ResourceStatus enum
func (s ResourceStatus) String() string {
	switch s {
	case ResourceIdle:
		return "Idle"
	case ResourceBusy:
		return "Busy"
	default:
		return "Unknown"
	}
}

// Resource is a forge line, furnace, machine set, gauge or dispatch bay.
// LastReleasedAt is the end time of the last batch it completed.
type Resource struct {
	ID             ResourceID
	Tenant         TenantID
	Name           string
	Kind           ResourceKind
	Status         ResourceStatus
	CurrentBatchID BatchID
	LastReleasedAt time.Time
	Version        int64
	Deleted        bool
}

// NewResource creates a validated idle Resource
func NewResource(tenant TenantID, name string, kind ResourceKind) (*Resource, error) {
	if name == "" {
		return nil, apperr.Validation("resource name cannot be empty")
	}
	if kind < ForgeLine || kind > DispatchBay {
		return nil, apperr.Validation(fmt.Sprintf("invalid resource kind %d", kind))
	}
	return &Resource{Tenant: tenant, Name: name, Kind: kind, Status: ResourceIdle}, nil
}

// CanRun reports why the resource cannot take a batch of stage right now
func (r *Resource) CanRun(stage StageKind) error {
	if r.Kind != stage.ResourceKind() {
		return apperr.InvalidOperation(fmt.Sprintf("resource %d is a %s and cannot run %s batches", r.ID, r.Kind, stage))
	}
	if r.Status != ResourceIdle {
		return apperr.InvalidTransition(fmt.Sprintf("resource %d already runs batch %d", r.ID, r.CurrentBatchID))
	}
	return nil
}

// Occupy assigns a batch to the resource
func (r *Resource) Occupy(batch BatchID, stage StageKind) error {
	if err := r.CanRun(stage); err != nil {
		return err
	}
	r.Status = ResourceBusy
	r.CurrentBatchID = batch
	return nil
}

// Release frees the resource after its batch ended at endAt
func (r *Resource) Release(batch BatchID, endAt time.Time) error {
	if r.Status != ResourceBusy || r.CurrentBatchID != batch {
		return apperr.InvalidTransition(fmt.Sprintf("resource %d is not running batch %d", r.ID, batch))
	}
	r.Status = ResourceIdle
	r.CurrentBatchID = 0
	r.LastReleasedAt = endAt
	return nil
}

// Withdraw frees the resource from a batch that was deleted before it ran.
// LastReleasedAt keeps the end of the last batch that actually ran.
func (r *Resource) Withdraw(batch BatchID) error {
	if r.Status != ResourceBusy || r.CurrentBatchID != batch {
		return apperr.InvalidTransition(fmt.Sprintf("resource %d is not running batch %d", r.ID, batch))
	}
	r.Status = ResourceIdle
	r.CurrentBatchID = 0
	return nil
}

// Clone returns a copy safe to mutate independently
func (r *Resource) Clone() *Resource {
	c := *r
	return &c
}
