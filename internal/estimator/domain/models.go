// Package domain contains the declarative cube description and the derived
// size/cost estimate types.
package domain

// Cost schemes understood by the estimator.
const (
	SchemeFree   = "free"
	SchemePunits = "punits"
)

// CubeConfig is the declarative target-grid part of a cube descriptor.
type CubeConfig struct {
	VariableNames []string    `json:"variable_names"`
	BBox          *[4]float64 `json:"bbox,omitempty"` // x_min, y_min, x_max, y_max
	CRS           string      `json:"crs,omitempty"`
	SpatialRes    float64     `json:"spatial_res,omitempty"`
	TimeRange     *[2]string  `json:"time_range,omitempty"`
	TimePeriod    string      `json:"time_period,omitempty"` // e.g. "1D", "8D", "2W"
	TileSize      *[2]int64   `json:"tile_size,omitempty"`   // width, height
}

// VariableDescriptor describes one data variable of a produced dataset.
type VariableDescriptor struct {
	Dtype string   `json:"dtype,omitempty"`
	Dims  []string `json:"dims,omitempty"`
}

// DatasetDescriptor is the resolved description of an actually produced
// dataset: discrete dimension extents plus its variables. Spatial dimensions
// may be named lat/lon or y/x.
type DatasetDescriptor struct {
	DataID   string                        `json:"data_id,omitempty"`
	Dims     map[string]int64              `json:"dims"`
	DataVars map[string]VariableDescriptor `json:"data_vars"`
}

// CostParams describes the punit conversion for a data source and the
// destination store.
type CostParams struct {
	Scheme               string  `json:"scheme"`
	InputPixelsPerPunit  int64   `json:"input_pixels_per_punit"`
	InputPunitsWeight    float64 `json:"input_punits_weight"`
	OutputPixelsPerPunit int64   `json:"output_pixels_per_punit"`
	OutputPunitsWeight   float64 `json:"output_punits_weight"`
}

// SizeEstimate is the derived tile/request/byte volume of a cube description.
// Invariant: ImageSize[i] == NumTiles[i] * TileSize[i].
type SizeEstimate struct {
	ImageSize     [2]int64 `json:"image_size"` // width, height
	TileSize      [2]int64 `json:"tile_size"`
	NumTiles      [2]int64 `json:"num_tiles"`
	VariableCount int64    `json:"num_variables"`
	TimeSteps     int64    `json:"num_time_steps"`
	RequestCount  int64    `json:"num_requests"`
	ByteCount     int64    `json:"num_bytes"`
}

// CostEstimate is the punit charge derived from a size estimate.
// TotalCount = round(max(InputWeight*InputCount, OutputWeight*OutputCount)).
type CostEstimate struct {
	InputCount   int64   `json:"input_count"`
	InputWeight  float64 `json:"input_weight"`
	OutputCount  int64   `json:"output_count"`
	OutputWeight float64 `json:"output_weight"`
	TotalCount   int64   `json:"total_count"`
}
