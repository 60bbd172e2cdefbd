package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/geocubed/cubehub/internal/estimator/domain"
)

// Default tile edge when the descriptor does not request one.
const defaultTileSize int64 = 1024

// bytesPerValue assumes float32 cube values.
const bytesPerValue int64 = 4

// tileCollapseFactor controls when a dimension collapses to a single tile
// instead of rounding up, avoiding degenerate final tiles.
const tileCollapseFactor = 1.5

type Service struct{}

var _ domain.Service = (*Service)(nil)

// NewService returns the estimator.
func NewService() domain.Service {
	return &Service{}
}

func (s *Service) EstimateSize(cfg domain.CubeConfig) (domain.SizeEstimate, error) {
	varCount := int64(len(cfg.VariableNames))
	if varCount < 1 {
		return domain.SizeEstimate{}, domain.NewMissingKeyError("cube_config/variable_names")
	}
	if cfg.BBox == nil {
		return domain.SizeEstimate{}, domain.NewMissingKeyError("cube_config/bbox")
	}
	if cfg.SpatialRes <= 0 {
		return domain.SizeEstimate{}, domain.NewLowerBoundError("cube_config/spatial_res", "a positive number")
	}
	if cfg.TimeRange == nil {
		return domain.SizeEstimate{}, domain.NewMissingKeyError("cube_config/time_range")
	}

	xMin, yMin, xMax, yMax := cfg.BBox[0], cfg.BBox[1], cfg.BBox[2], cfg.BBox[3]
	if xMax <= xMin || yMax <= yMin {
		return domain.SizeEstimate{}, domain.NewInvalidKeyError("cube_config/bbox")
	}

	width := pixelExtent(xMax-xMin, cfg.SpatialRes)
	height := pixelExtent(yMax-yMin, cfg.SpatialRes)

	tileWidth, tileHeight := defaultTileSize, defaultTileSize
	if cfg.TileSize != nil {
		tileWidth, tileHeight = cfg.TileSize[0], cfg.TileSize[1]
		if tileWidth < 1 || tileHeight < 1 {
			return domain.SizeEstimate{}, domain.NewLowerBoundError("cube_config/tile_size", 1)
		}
	}

	width, tileWidth, numTilesX := normalizeTiling(width, tileWidth)
	height, tileHeight, numTilesY := normalizeTiling(height, tileHeight)

	timeSteps, err := timeStepCount(*cfg.TimeRange, cfg.TimePeriod)
	if err != nil {
		return domain.SizeEstimate{}, err
	}

	return domain.SizeEstimate{
		ImageSize:     [2]int64{width, height},
		TileSize:      [2]int64{tileWidth, tileHeight},
		NumTiles:      [2]int64{numTilesX, numTilesY},
		VariableCount: varCount,
		TimeSteps:     timeSteps,
		RequestCount:  numTilesX * numTilesY * timeSteps * varCount,
		ByteCount:     width * height * timeSteps * varCount * bytesPerValue,
	}, nil
}

func (s *Service) EstimateCost(desc *domain.DatasetDescriptor, params domain.CostParams) (domain.CostEstimate, error) {
	if desc == nil || len(desc.Dims) == 0 {
		return domain.CostEstimate{}, domain.NewMissingKeyError("dataset_descriptor/dims")
	}
	varCount := int64(len(desc.DataVars))
	if varCount < 1 {
		return domain.CostEstimate{}, domain.NewMissingKeyError("dataset_descriptor/data_vars")
	}
	timeSteps, ok := desc.Dims["time"]
	if !ok || timeSteps < 1 {
		return domain.CostEstimate{}, domain.NewMissingKeyError("dataset_descriptor/dims/time")
	}
	width, height, err := resolveSpatialDims(desc.Dims)
	if err != nil {
		return domain.CostEstimate{}, err
	}
	return costFor(width, height, timeSteps, varCount, params)
}

func (s *Service) Estimate(cfg domain.CubeConfig, params domain.CostParams) (domain.SizeEstimate, domain.CostEstimate, error) {
	size, err := s.EstimateSize(cfg)
	if err != nil {
		return domain.SizeEstimate{}, domain.CostEstimate{}, err
	}
	cost, err := costFor(size.ImageSize[0], size.ImageSize[1], size.TimeSteps, size.VariableCount, params)
	if err != nil {
		return domain.SizeEstimate{}, domain.CostEstimate{}, err
	}
	return size, cost, nil
}

// ceilDiv rounds up; the estimate must bound worst-case consumption, so
// tile and request counts never round down.
func ceilDiv(x, y int64) int64 {
	return (x + y - 1) / y
}

func punits(width, height, timeSteps, varCount, pixelsPerPunit int64) int64 {
	return varCount * timeSteps * ceilDiv(width*height, pixelsPerPunit)
}

func costFor(width, height, timeSteps, varCount int64, params domain.CostParams) (domain.CostEstimate, error) {
	switch params.Scheme {
	case domain.SchemeFree:
		return domain.CostEstimate{}, nil
	case domain.SchemePunits:
		// validated below
	default:
		return domain.CostEstimate{}, &domain.ValidationError{
			Message: fmt.Sprintf("unsupported cost scheme %q", params.Scheme),
		}
	}

	if params.InputPixelsPerPunit < 1 {
		return domain.CostEstimate{}, domain.NewLowerBoundError("cost_params/input_pixels_per_punit", 1)
	}
	if params.OutputPixelsPerPunit < 1 {
		return domain.CostEstimate{}, domain.NewLowerBoundError("cost_params/output_pixels_per_punit", 1)
	}
	if params.InputPunitsWeight <= 0 {
		return domain.CostEstimate{}, domain.NewLowerBoundError("cost_params/input_punits_weight", "a positive number")
	}
	if params.OutputPunitsWeight <= 0 {
		return domain.CostEstimate{}, domain.NewLowerBoundError("cost_params/output_punits_weight", "a positive number")
	}

	inputCount := punits(width, height, timeSteps, varCount, params.InputPixelsPerPunit)
	outputCount := punits(width, height, timeSteps, varCount, params.OutputPixelsPerPunit)
	total := math.Round(math.Max(
		params.InputPunitsWeight*float64(inputCount),
		params.OutputPunitsWeight*float64(outputCount),
	))

	return domain.CostEstimate{
		InputCount:   inputCount,
		InputWeight:  params.InputPunitsWeight,
		OutputCount:  outputCount,
		OutputWeight: params.OutputPunitsWeight,
		TotalCount:   int64(total),
	}, nil
}

func pixelExtent(span, res float64) int64 {
	px := int64(math.Round(span / res))
	if px < 1 {
		px = 1
	}
	return px
}

// normalizeTiling collapses to a single tile spanning the whole extent when
// the naive pixel extent is below 1.5x the requested tile edge; otherwise it
// rounds the tile count up and re-expands the extent to an exact multiple.
func normalizeTiling(extent, tile int64) (int64, int64, int64) {
	if float64(extent) < tileCollapseFactor*float64(tile) {
		return extent, extent, 1
	}
	count := ceilDiv(extent, tile)
	return count * tile, tile, count
}

func resolveSpatialDims(dims map[string]int64) (int64, int64, error) {
	if lat, ok := dims["lat"]; ok {
		if lon, ok := dims["lon"]; ok {
			return lon, lat, nil
		}
	}
	if y, ok := dims["y"]; ok {
		if x, ok := dims["x"]; ok {
			return x, y, nil
		}
	}
	return 0, 0, domain.NewNoSpatialDimsError()
}

func timeStepCount(timeRange [2]string, period string) (int64, error) {
	start, err := parseDate(timeRange[0])
	if err != nil {
		return 0, domain.NewInvalidKeyError("cube_config/time_range")
	}
	end, err := parseDate(timeRange[1])
	if err != nil {
		return 0, domain.NewInvalidKeyError("cube_config/time_range")
	}
	if end.Before(start) {
		return 0, domain.NewInvalidKeyError("cube_config/time_range")
	}

	periodDays, err := periodInDays(period)
	if err != nil {
		return 0, err
	}

	days := int64(end.Sub(start).Hours()/24) + 1
	steps := ceilDiv(days, periodDays)
	if steps < 1 {
		steps = 1
	}
	return steps, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

// periodInDays parses periods of the form "<count><unit>" with unit one of
// D, W, M, Y. An empty period means daily.
func periodInDays(period string) (int64, error) {
	period = strings.ToUpper(strings.TrimSpace(period))
	if period == "" {
		return 1, nil
	}

	unit := period[len(period)-1:]
	countPart := period[:len(period)-1]
	count := int64(1)
	if countPart != "" {
		parsed, err := strconv.ParseInt(countPart, 10, 64)
		if err != nil || parsed < 1 {
			return 0, domain.NewInvalidKeyError("cube_config/time_period")
		}
		count = parsed
	}

	switch unit {
	case "D":
		return count, nil
	case "W":
		return count * 7, nil
	case "M":
		return count * 30, nil
	case "Y":
		return count * 365, nil
	default:
		return 0, domain.NewInvalidKeyError("cube_config/time_period")
	}
}
