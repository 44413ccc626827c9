// Package interfaces defines the contracts between the scheduling core
// and its external collaborators (asset catalog, predictor service,
// export API, blob store).
package interfaces

import (
	"context"
	"io"

	"github.com/ternarybob/humus/internal/models"
)

// AssetCatalog is a read-only client over the remote asset store.
type AssetCatalog interface {
	// List returns the assets under a path prefix. Fails with
	// catalog.UnavailableError on transient listing errors; callers are
	// expected to degrade to an empty known state rather than abort.
	List(ctx context.Context, prefix string) ([]models.CatalogEntry, error)

	// Exists probes a single asset's metadata. A missing asset and a
	// failed probe both report false; the two cases are deliberately not
	// distinguished (see the catalog package doc).
	Exists(ctx context.Context, assetID string) bool

	// Get fetches a single asset's metadata.
	Get(ctx context.Context, assetID string) (*models.AssetMetadata, error)

	// Download streams an asset's raster content to w.
	Download(ctx context.Context, assetID string, w io.Writer) error
}

// PredictorService runs the opaque server-side model computation and
// one-off geometry evaluations.
type PredictorService interface {
	// Compute requests the model product for one period and returns an
	// opaque artifact reference. The computation itself stays server-side.
	Compute(ctx context.Context, product string, period models.Period) (string, error)

	// ResolveRegion evaluates a named export region to concrete
	// coordinates. Invariant within a run, so callers cache the result.
	ResolveRegion(ctx context.Context, regionRef string) ([][]float64, error)
}

// ExportAPI starts asynchronous export jobs against computed artifacts.
type ExportAPI interface {
	// StartExport submits an export job and returns its task id without
	// waiting for completion. Jobs may run for minutes to hours.
	StartExport(ctx context.Context, req models.ExportRequest) (string, error)
}

// JobSubmitter turns one missing period into a submitted export task.
type JobSubmitter interface {
	Submit(ctx context.Context, period models.Period) (*models.JobHandle, error)
}

// BlobStore is the delivery target for collected rasters.
type BlobStore interface {
	GetOrCreateFolder(ctx context.Context, name string) (string, error)
	Upload(ctx context.Context, folderID, localPath, name string) (string, error)
}
