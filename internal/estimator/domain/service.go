package domain

import "fmt"

// Service estimates size and punit cost of cube descriptions. All methods
// are pure; identical input yields identical output.
type Service interface {
	// EstimateSize derives the tile/request/byte volume of a declarative
	// cube configuration before any dataset exists.
	EstimateSize(cfg CubeConfig) (SizeEstimate, error)
	// EstimateCost prices an actually produced dataset descriptor.
	EstimateCost(desc *DatasetDescriptor, params CostParams) (CostEstimate, error)
	// Estimate combines EstimateSize with pricing for the pre-flight check.
	Estimate(cfg CubeConfig, params CostParams) (SizeEstimate, CostEstimate, error)
}

// ValidationError reports a malformed or missing descriptor field. The
// message names the offending key path and is safe to show to callers.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewMissingKeyError reports an absent or empty request key.
func NewMissingKeyError(path string) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf("missing request key %q", path)}
}

// NewInvalidKeyError reports a present but malformed request key.
func NewInvalidKeyError(path string) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf("invalid request key %q", path)}
}

// NewLowerBoundError reports a numeric parameter below its lower bound.
func NewLowerBoundError(path string, min any) *ValidationError {
	return &ValidationError{
		Message: fmt.Sprintf("value for request key %q must not be lower than %v", path, min),
	}
}

// NewNoSpatialDimsError reports dims lacking both lat/lon and y/x pairs.
func NewNoSpatialDimsError() *ValidationError {
	return &ValidationError{Message: "Cannot find a valid spatial dimension"}
}
