package service

import (
	"testing"

	"github.com/geocubed/cubehub/internal/estimator/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func punitParams() domain.CostParams {
	return domain.CostParams{
		Scheme:               domain.SchemePunits,
		InputPixelsPerPunit:  262144,
		InputPunitsWeight:    1.0,
		OutputPixelsPerPunit: 262144,
		OutputPunitsWeight:   1.0,
	}
}

func TestEstimateCostFromDescriptor(t *testing.T) {
	svc := NewService()

	desc := &domain.DatasetDescriptor{
		DataID: "demo.zarr",
		Dims:   map[string]int64{"time": 14, "lat": 5000, "lon": 2000},
		DataVars: map[string]domain.VariableDescriptor{
			"B04": {Dtype: "float32", Dims: []string{"time", "lat", "lon"}},
			"B08": {Dtype: "float32", Dims: []string{"time", "lat", "lon"}},
		},
	}

	cost, err := svc.EstimateCost(desc, punitParams())
	require.NoError(t, err)

	// ceil(5000*2000/262144) = 39, times 14 time steps and 2 variables.
	assert.Equal(t, int64(1092), cost.InputCount)
	assert.Equal(t, int64(1092), cost.OutputCount)
	assert.Equal(t, int64(1092), cost.TotalCount)
}

func TestEstimateCostSpatialDimFallback(t *testing.T) {
	svc := NewService()

	desc := &domain.DatasetDescriptor{
		Dims: map[string]int64{"time": 14, "y": 5000, "x": 2000},
		DataVars: map[string]domain.VariableDescriptor{
			"B04": {}, "B08": {},
		},
	}

	cost, err := svc.EstimateCost(desc, punitParams())
	require.NoError(t, err)
	assert.Equal(t, int64(1092), cost.TotalCount)
}

func TestEstimateCostNoSpatialDims(t *testing.T) {
	svc := NewService()

	desc := &domain.DatasetDescriptor{
		Dims:     map[string]int64{"time": 14, "depth": 10},
		DataVars: map[string]domain.VariableDescriptor{"temp": {}},
	}

	_, err := svc.EstimateCost(desc, punitParams())
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "Cannot find a valid spatial dimension")
}

func TestEstimateCostMissingDataVars(t *testing.T) {
	svc := NewService()

	desc := &domain.DatasetDescriptor{
		Dims: map[string]int64{"time": 14, "lat": 100, "lon": 100},
	}

	_, err := svc.EstimateCost(desc, punitParams())
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "data_vars")
}

func TestEstimateCostUnsupportedScheme(t *testing.T) {
	svc := NewService()

	desc := &domain.DatasetDescriptor{
		Dims:     map[string]int64{"time": 1, "lat": 10, "lon": 10},
		DataVars: map[string]domain.VariableDescriptor{"a": {}},
	}

	_, err := svc.EstimateCost(desc, domain.CostParams{Scheme: "credits"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "unsupported cost scheme")

	_, err = svc.EstimateCost(desc, domain.CostParams{})
	require.ErrorAs(t, err, &verr)
}

func TestEstimateCostFreeScheme(t *testing.T) {
	svc := NewService()

	desc := &domain.DatasetDescriptor{
		Dims:     map[string]int64{"time": 14, "lat": 5000, "lon": 2000},
		DataVars: map[string]domain.VariableDescriptor{"B04": {}},
	}

	cost, err := svc.EstimateCost(desc, domain.CostParams{Scheme: domain.SchemeFree})
	require.NoError(t, err)
	assert.Equal(t, domain.CostEstimate{}, cost)
}

func TestEstimateSizeTileNormalization(t *testing.T) {
	svc := NewService()

	cfg := domain.CubeConfig{
		VariableNames: []string{"B04", "B08"},
		BBox:          &[4]float64{0, 0, 20, 20},
		SpatialRes:    0.01, // 2000 x 2000 pixels
		TimeRange:     &[2]string{"2023-01-01", "2023-01-14"},
		TimePeriod:    "1D",
		TileSize:      &[2]int64{1024, 1024},
	}

	size, err := svc.EstimateSize(cfg)
	require.NoError(t, err)

	// 2000 >= 1.5*1024, so each dimension rounds up to two tiles and the
	// image re-expands to an exact multiple of the tile edge.
	assert.Equal(t, [2]int64{2048, 2048}, size.ImageSize)
	assert.Equal(t, [2]int64{1024, 1024}, size.TileSize)
	assert.Equal(t, [2]int64{2, 2}, size.NumTiles)
	assert.Equal(t, int64(2), size.VariableCount)
	assert.Equal(t, int64(14), size.TimeSteps)
	assert.Equal(t, int64(2*2*14*2), size.RequestCount)
	assert.Equal(t, int64(2048*2048*14*2*4), size.ByteCount)
}

func TestEstimateSizeSingleTileCollapse(t *testing.T) {
	svc := NewService()

	cfg := domain.CubeConfig{
		VariableNames: []string{"ndvi"},
		BBox:          &[4]float64{0, 0, 12, 12},
		SpatialRes:    0.01, // 1200 x 1200 pixels, below 1.5*1024
		TimeRange:     &[2]string{"2023-01-01", "2023-01-01"},
	}

	size, err := svc.EstimateSize(cfg)
	require.NoError(t, err)
	assert.Equal(t, [2]int64{1200, 1200}, size.ImageSize)
	assert.Equal(t, [2]int64{1200, 1200}, size.TileSize)
	assert.Equal(t, [2]int64{1, 1}, size.NumTiles)
}

func TestEstimateSizeInvariant(t *testing.T) {
	svc := NewService()

	for _, tile := range []int64{256, 512, 1000, 1024} {
		cfg := domain.CubeConfig{
			VariableNames: []string{"a"},
			BBox:          &[4]float64{0, 0, 33.33, 17.77},
			SpatialRes:    0.005,
			TimeRange:     &[2]string{"2022-06-01", "2022-08-31"},
			TimePeriod:    "8D",
			TileSize:      &[2]int64{tile, tile},
		}
		size, err := svc.EstimateSize(cfg)
		require.NoError(t, err)
		assert.Equal(t, size.ImageSize[0], size.NumTiles[0]*size.TileSize[0])
		assert.Equal(t, size.ImageSize[1], size.NumTiles[1]*size.TileSize[1])
	}
}

func TestEstimateSizeValidation(t *testing.T) {
	svc := NewService()

	base := domain.CubeConfig{
		VariableNames: []string{"a"},
		BBox:          &[4]float64{0, 0, 1, 1},
		SpatialRes:    0.01,
		TimeRange:     &[2]string{"2023-01-01", "2023-01-31"},
	}

	cases := []struct {
		name    string
		mutate  func(*domain.CubeConfig)
		message string
	}{
		{"no variables", func(c *domain.CubeConfig) { c.VariableNames = nil }, "variable_names"},
		{"no bbox", func(c *domain.CubeConfig) { c.BBox = nil }, "bbox"},
		{"inverted bbox", func(c *domain.CubeConfig) { c.BBox = &[4]float64{1, 1, 0, 0} }, "bbox"},
		{"zero resolution", func(c *domain.CubeConfig) { c.SpatialRes = 0 }, "spatial_res"},
		{"no time range", func(c *domain.CubeConfig) { c.TimeRange = nil }, "time_range"},
		{"reversed time range", func(c *domain.CubeConfig) { c.TimeRange = &[2]string{"2023-02-01", "2023-01-01"} }, "time_range"},
		{"bad period", func(c *domain.CubeConfig) { c.TimePeriod = "fortnight" }, "time_period"},
		{"zero tile", func(c *domain.CubeConfig) { c.TileSize = &[2]int64{0, 1024} }, "tile_size"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			_, err := svc.EstimateSize(cfg)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Message, tc.message)
		})
	}
}

func TestEstimateDeterministic(t *testing.T) {
	svc := NewService()

	cfg := domain.CubeConfig{
		VariableNames: []string{"B04", "B08", "SCL"},
		BBox:          &[4]float64{9.7, 53.3, 10.4, 53.8},
		SpatialRes:    0.0001,
		TimeRange:     &[2]string{"2023-03-01", "2023-09-30"},
		TimePeriod:    "1W",
	}
	params := punitParams()

	size1, cost1, err := svc.Estimate(cfg, params)
	require.NoError(t, err)
	size2, cost2, err := svc.Estimate(cfg, params)
	require.NoError(t, err)

	assert.Equal(t, size1, size2)
	assert.Equal(t, cost1, cost2)
	assert.Positive(t, cost1.TotalCount)
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, int64(1), ceilDiv(1, 1024))
	assert.Equal(t, int64(1), ceilDiv(1024, 1024))
	assert.Equal(t, int64(2), ceilDiv(1025, 1024))
	assert.Equal(t, int64(39), ceilDiv(5000*2000, 262144))
}

func TestTimeStepCount(t *testing.T) {
	cases := []struct {
		rangeStr [2]string
		period   string
		want     int64
	}{
		{[2]string{"2023-01-01", "2023-01-01"}, "", 1},
		{[2]string{"2023-01-01", "2023-01-14"}, "1D", 14},
		{[2]string{"2023-01-01", "2023-01-14"}, "1W", 2},
		{[2]string{"2023-01-01", "2023-12-31"}, "1M", 13},
		{[2]string{"2023-01-01T00:00:00Z", "2023-01-08T00:00:00Z"}, "8D", 1},
	}
	for _, tc := range cases {
		got, err := timeStepCount(tc.rangeStr, tc.period)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "range %v period %q", tc.rangeStr, tc.period)
	}
}
