// Package versions resolves numbered asset versions by probing the
// catalog. NextVersion feeds versioned export submissions; LatestVersion
// is the read-side counterpart of the _vN convention, kept alongside it
// for consumers that pin the newest existing version of an upstream
// raster (the compute service resolves its own inputs, so the submission
// path never calls it).
//
// Version counts are expected to stay in single digits, so serial
// probing is O(existing versions) round-trips; if counts ever grow,
// replace the probe loop with a single prefix list plus max-parse.
package versions

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/humus/internal/interfaces"
)

const (
	// nextProbeCap bounds the probe loop against a pathological catalog.
	nextProbeCap = 1000

	// latestProbeCap bounds reads of upstream dependencies.
	latestProbeCap = 200
)

// NoVersionFoundError reports that no version of a required upstream
// asset exists, not even the unversioned base.
type NoVersionFoundError struct {
	Base string
}

func (e *NoVersionFoundError) Error() string {
	return fmt.Sprintf("no version found for asset base %s", e.Base)
}

// Resolver probes the catalog for numbered asset versions.
type Resolver struct {
	catalog interfaces.AssetCatalog
	logger  arbor.ILogger
}

// NewResolver creates a resolver over the given catalog.
func NewResolver(catalog interfaces.AssetCatalog, logger arbor.ILogger) *Resolver {
	return &Resolver{
		catalog: catalog,
		logger:  logger,
	}
}

func versionID(base string, v int) string {
	return base + "_v" + strconv.Itoa(v)
}

// NextVersion returns the asset id of the next version to create for the
// given unversioned base id: the first _vN that does not exist, probing
// from v1. A probe failure reads as absent, so a transient catalog error
// can resolve to a version that already exists; the export then fails
// loudly rather than overwriting.
func (r *Resolver) NextVersion(ctx context.Context, base string) string {
	v := 1
	for v < nextProbeCap && r.catalog.Exists(ctx, versionID(base, v)) {
		v++
	}

	id := versionID(base, v)
	if r.logger != nil {
		r.logger.Debug().
			Str("base", base).
			Int("version", v).
			Msg("Resolved next asset version")
	}
	return id
}

// LatestVersion returns the id of the last existing version for the
// given unversioned base id, falling back to the base itself when no
// _vN exists. Used when reading an upstream dependency rather than
// writing a new output. Fails with NoVersionFoundError when nothing
// exists at all.
func (r *Resolver) LatestVersion(ctx context.Context, base string) (string, error) {
	v := 1
	for v <= latestProbeCap && r.catalog.Exists(ctx, versionID(base, v)) {
		v++
	}

	if v > 1 {
		id := versionID(base, v-1)
		if r.logger != nil {
			r.logger.Debug().
				Str("asset_id", id).
				Msg("Using versioned asset")
		}
		return id, nil
	}

	if r.catalog.Exists(ctx, base) {
		return base, nil
	}

	return "", &NoVersionFoundError{Base: base}
}
