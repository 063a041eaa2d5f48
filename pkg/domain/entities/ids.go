package entities

// TenantID identifies the owning factory tenant. Every entity is tenant-owned.
type TenantID int64

// HeatID identifies a raw-material heat
type HeatID int64

// BatchID identifies a stage batch
type BatchID int64

// AllocationID identifies a processed item allocation
type AllocationID int64

// ResourceID identifies a forge line, furnace, machine set, gauge or dispatch bay
type ResourceID int64

// ItemID identifies the forged item (part) being produced
type ItemID int64

// Pieces represents a discrete piece count
type Pieces int64
