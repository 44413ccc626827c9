package models

import "time"

// TaskStatus is the lifecycle state of an export task as recorded in the
// ledger. The scheduler only ever writes SUBMITTED; refreshing the status
// of running tasks is the compute service's concern, not ours.
type TaskStatus string

const (
	TaskStatusSubmitted TaskStatus = "SUBMITTED"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// JobHandle is a lightweight reference to an asynchronous export task
// running on the compute service. Created at submission time, written to
// the task ledger, read back by the collector, and never updated in place.
type JobHandle struct {
	TaskID      string     `json:"taskId"`
	AssetPath   string     `json:"assetPath"`
	Year        int        `json:"year"`
	Month       int        `json:"month,omitempty"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
}

// Period returns the scheduling period the handle was submitted for.
func (h JobHandle) Period() Period {
	return Period{Year: h.Year, Month: h.Month}
}

// CatalogEntry is a single asset returned by a catalog listing. Only the
// identifier and raw name are ever inspected; asset content is opaque.
type CatalogEntry struct {
	ID      string `json:"id"`
	RawName string `json:"name"`
}

// AssetMetadata is the metadata record returned by a single-asset fetch.
type AssetMetadata struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	SizeBytes  int64     `json:"sizeBytes"`
	UpdateTime time.Time `json:"updateTime"`
}

// ExportRequest describes one asset export to start on the compute
// service. Region is a GeoJSON-style linear ring of [lon, lat] pairs.
type ExportRequest struct {
	Artifact    string      `json:"artifact"`
	AssetID     string      `json:"assetId"`
	Description string      `json:"description"`
	Scale       int         `json:"scale"`
	CRS         string      `json:"crs"`
	MaxPixels   float64     `json:"maxPixels"`
	Region      [][]float64 `json:"region"`
}
