package export

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/humus/internal/common"
	"github.com/ternarybob/humus/internal/models"
	"github.com/ternarybob/humus/internal/versions"
)

type fakePredictor struct {
	computeErr    error
	regionErr     error
	regionCalls   int
	computedFor   []models.Period
	regionCoords  [][]float64
	regionResolve string
}

func (f *fakePredictor) Compute(ctx context.Context, product string, period models.Period) (string, error) {
	if f.computeErr != nil {
		return "", f.computeErr
	}
	f.computedFor = append(f.computedFor, period)
	return "artifact-" + period.String(), nil
}

func (f *fakePredictor) ResolveRegion(ctx context.Context, regionRef string) ([][]float64, error) {
	f.regionCalls++
	f.regionResolve = regionRef
	if f.regionErr != nil {
		return nil, f.regionErr
	}
	if f.regionCoords == nil {
		f.regionCoords = [][]float64{{-71.6, -33.0}, {-71.0, -33.0}, {-71.0, -32.0}}
	}
	return f.regionCoords, nil
}

type fakeExporter struct {
	startErr error
	taskID   string
	requests []models.ExportRequest
}

func (f *fakeExporter) StartExport(ctx context.Context, req models.ExportRequest) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.requests = append(f.requests, req)
	return f.taskID, nil
}

type existsCatalog struct {
	assets map[string]bool
}

func (f *existsCatalog) List(ctx context.Context, prefix string) ([]models.CatalogEntry, error) {
	return nil, nil
}

func (f *existsCatalog) Exists(ctx context.Context, assetID string) bool {
	return f.assets[assetID]
}

func (f *existsCatalog) Get(ctx context.Context, assetID string) (*models.AssetMetadata, error) {
	return nil, errors.New("not implemented")
}

func (f *existsCatalog) Download(ctx context.Context, assetID string, w io.Writer) error {
	return errors.New("not implemented")
}

func monthlyProduct() common.ProductConfig {
	return common.ProductConfig{
		Name:        "soil_moisture",
		Granularity: "month",
		AssetFolder: "projects/sm/assets/SM",
		NameFormat:  "SM{year}Valparaiso_GCOM_mes{month}",
		Region:      "valparaiso",
	}
}

func exportDefaults() common.ExportConfig {
	return common.ExportConfig{
		Scale:     1000,
		CRS:       "EPSG:4326",
		MaxPixels: 1e13,
	}
}

func newTestSubmitter(product common.ProductConfig, pred *fakePredictor, exp *fakeExporter, cat *existsCatalog) *Submitter {
	if cat == nil {
		cat = &existsCatalog{assets: map[string]bool{}}
	}
	resolver := versions.NewResolver(cat, nil)
	return NewSubmitter(product, exportDefaults(), pred, exp, resolver, arbor.NewLogger())
}

func TestSubmit(t *testing.T) {
	pred := &fakePredictor{}
	exp := &fakeExporter{taskID: "EE_TASK_1"}
	s := newTestSubmitter(monthlyProduct(), pred, exp, nil)

	handle, err := s.Submit(context.Background(), models.Period{Year: 2019, Month: 7})
	require.NoError(t, err)

	assert.Equal(t, "EE_TASK_1", handle.TaskID)
	assert.Equal(t, "projects/sm/assets/SM/SM2019Valparaiso_GCOM_mes7", handle.AssetPath)
	assert.Equal(t, 2019, handle.Year)
	assert.Equal(t, 7, handle.Month)
	assert.Equal(t, "SM2019Valparaiso_GCOM_mes7", handle.Description)
	assert.Equal(t, models.TaskStatusSubmitted, handle.Status)

	require.Len(t, exp.requests, 1)
	req := exp.requests[0]
	assert.Equal(t, "artifact-2019-07", req.Artifact)
	assert.Equal(t, 1000, req.Scale)
	assert.Equal(t, "EPSG:4326", req.CRS)
	assert.Equal(t, 1e13, req.MaxPixels)
	assert.Equal(t, "valparaiso", pred.regionResolve)
	assert.NotEmpty(t, req.Region)
}

func TestSubmitVersionedProduct(t *testing.T) {
	product := common.ProductConfig{
		Name:        "lst_viirs_day",
		Granularity: "year",
		AssetFolder: "projects/sm/assets/LST",
		NameFormat:  "LST_VIIRS_Day_{year}",
		Versioned:   true,
		Region:      "valparaiso",
	}
	cat := &existsCatalog{assets: map[string]bool{
		"projects/sm/assets/LST/LST_VIIRS_Day_2021_v1": true,
		"projects/sm/assets/LST/LST_VIIRS_Day_2021_v2": true,
	}}
	pred := &fakePredictor{}
	exp := &fakeExporter{taskID: "EE_TASK_2"}
	s := newTestSubmitter(product, pred, exp, cat)

	handle, err := s.Submit(context.Background(), models.Period{Year: 2021})
	require.NoError(t, err)

	assert.Equal(t, "projects/sm/assets/LST/LST_VIIRS_Day_2021_v3", handle.AssetPath)
	assert.Equal(t, "LST_VIIRS_Day_2021_v3", handle.Description)
	assert.Zero(t, handle.Month)
}

func TestSubmitResolvesRegionOnce(t *testing.T) {
	pred := &fakePredictor{}
	exp := &fakeExporter{taskID: "t"}
	s := newTestSubmitter(monthlyProduct(), pred, exp, nil)

	for month := 1; month <= 4; month++ {
		_, err := s.Submit(context.Background(), models.Period{Year: 2020, Month: month})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, pred.regionCalls, "region geometry is invariant within a run")
}

func TestSubmitPerProductOverrides(t *testing.T) {
	product := monthlyProduct()
	product.Scale = 500
	product.CRS = "EPSG:32719"

	pred := &fakePredictor{}
	exp := &fakeExporter{taskID: "t"}
	s := newTestSubmitter(product, pred, exp, nil)

	_, err := s.Submit(context.Background(), models.Period{Year: 2020, Month: 1})
	require.NoError(t, err)

	req := exp.requests[0]
	assert.Equal(t, 500, req.Scale)
	assert.Equal(t, "EPSG:32719", req.CRS)
	assert.Equal(t, 1e13, req.MaxPixels, "unset override keeps the default")
}

func TestSubmitGeneratesTaskIDWhenMissing(t *testing.T) {
	pred := &fakePredictor{}
	exp := &fakeExporter{taskID: ""}
	s := newTestSubmitter(monthlyProduct(), pred, exp, nil)

	handle, err := s.Submit(context.Background(), models.Period{Year: 2020, Month: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, handle.TaskID)
}

func TestSubmitWrapsFailures(t *testing.T) {
	boom := errors.New("compute failed")

	tests := []struct {
		name string
		pred *fakePredictor
		exp  *fakeExporter
	}{
		{"compute failure", &fakePredictor{computeErr: boom}, &fakeExporter{taskID: "t"}},
		{"region failure", &fakePredictor{regionErr: boom}, &fakeExporter{taskID: "t"}},
		{"export failure", &fakePredictor{}, &fakeExporter{startErr: boom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSubmitter(monthlyProduct(), tt.pred, tt.exp, nil)

			period := models.Period{Year: 2020, Month: 5}
			_, err := s.Submit(context.Background(), period)

			var subErr *SubmissionError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, period, subErr.Period)
			assert.ErrorIs(t, err, boom)
		})
	}
}
