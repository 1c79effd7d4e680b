package flow

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// =============================================================================
// FLOW ERROR TYPES
// Concise, informative error messages with location and context
// =============================================================================

var (
	// ErrEmptyBatch is returned when an operation receives zero points.
	ErrEmptyBatch = errors.New("flow: empty batch")
	// ErrDimensionMismatch is returned when point widths disagree with the configured latent dimension.
	ErrDimensionMismatch = errors.New("flow: dimension mismatch")
	// ErrClassOutOfRange is returned for class indices outside [0, NumClasses).
	ErrClassOutOfRange = errors.New("flow: class index out of range")
	// ErrNumericInstability is returned when a transform produces NaN or Inf.
	ErrNumericInstability = errors.New("flow: numeric instability")
)

// TensorInfo captures tensor state for error reporting
type TensorInfo struct {
	Shape      []int
	Size       int
	NaNCount   int
	InfCount   int
	MinValue   float64
	MaxValue   float64
	BadIndices []int // First 10 corrupted indices
}

// Format returns a compact string representation
func (t *TensorInfo) Format() string {
	s := fmt.Sprintf("%v size=%d", t.Shape, t.Size)
	if t.NaNCount > 0 || t.InfCount > 0 {
		s += fmt.Sprintf(" (corrupt: %d NaN, %d Inf)", t.NaNCount, t.InfCount)
	} else {
		s += fmt.Sprintf(" range=[%.4f, %.4f]", t.MinValue, t.MaxValue)
	}
	return s
}

// FlowError is the standard error type for Flow
type FlowError struct {
	Component    string      // "AffineCoupling", "Embedding", etc.
	ErrorType    string      // "shape mismatch", "NaN detected"
	LayerIndex   int         // position in the flow stack, -1 if not applicable
	Phase        string      // "forward", "inverse", "backward", "build"
	OutputInfo   *TensorInfo // nil if not relevant
	ExpectedInfo string      // what was expected
	Cause        string      // human-readable cause
	Err          error       // sentinel for errors.Is
}

// Error implements the error interface
func (e *FlowError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "flow: %s %s", e.Component, e.ErrorType)
	if e.LayerIndex >= 0 {
		fmt.Fprintf(&b, " at layer %d", e.LayerIndex)
	}
	if e.Phase != "" {
		fmt.Fprintf(&b, " during %s", e.Phase)
	}
	b.WriteString("\n")

	if e.OutputInfo != nil {
		fmt.Fprintf(&b, "  output:   %s\n", e.OutputInfo.Format())
	}
	if e.ExpectedInfo != "" {
		fmt.Fprintf(&b, "  expected: %s\n", e.ExpectedInfo)
	}

	fmt.Fprintf(&b, "  cause:    %s", e.Cause)

	return b.String()
}

// Unwrap exposes the sentinel error.
func (e *FlowError) Unwrap() error {
	return e.Err
}

// ScanTensor checks for NaN/Inf and collects stats
func ScanTensor(t *tensor) *TensorInfo {
	if t == nil {
		return nil
	}

	info := &TensorInfo{
		Shape:      t.shape,
		Size:       len(t.data),
		MinValue:   math.Inf(1),
		MaxValue:   math.Inf(-1),
		BadIndices: make([]int, 0, 10),
	}

	for i, v := range t.data {
		if math.IsNaN(v) {
			info.NaNCount++
			if len(info.BadIndices) < 10 {
				info.BadIndices = append(info.BadIndices, i)
			}
		} else if math.IsInf(v, 0) {
			info.InfCount++
			if len(info.BadIndices) < 10 {
				info.BadIndices = append(info.BadIndices, i)
			}
		} else {
			info.MinValue = min(info.MinValue, v)
			info.MaxValue = max(info.MaxValue, v)
		}
	}

	// Handle empty or all-corrupt tensors
	if math.IsInf(info.MinValue, 1) {
		info.MinValue = 0
	}
	if math.IsInf(info.MaxValue, -1) {
		info.MaxValue = 0
	}

	return info
}

// checkFinite reports NaN/Inf values in t as an ErrNumericInstability.
func checkFinite(t *tensor, component, phase string, layerIndex int) error {
	info := ScanTensor(t)
	if info.NaNCount == 0 && info.InfCount == 0 {
		return nil
	}

	errType := "Inf detected"
	cause := fmt.Sprintf("%d Inf values at indices %v - likely exp(log_s) overflow", info.InfCount, info.BadIndices)
	if info.NaNCount > 0 {
		errType = "NaN detected"
		cause = fmt.Sprintf("%d NaN values at indices %v", info.NaNCount, info.BadIndices)
	}

	return &FlowError{
		Component:  component,
		ErrorType:  errType,
		LayerIndex: layerIndex,
		Phase:      phase,
		OutputInfo: info,
		Cause:      cause,
		Err:        ErrNumericInstability,
	}
}

// checkWidth validates that a batch has the expected column count.
func checkWidth(t *tensor, want int, component string, layerIndex int) error {
	if t.cols() == want {
		return nil
	}
	return &FlowError{
		Component:    component,
		ErrorType:    "shape mismatch",
		LayerIndex:   layerIndex,
		OutputInfo:   ScanTensor(t),
		ExpectedInfo: fmt.Sprintf("width=%d", want),
		Cause:        fmt.Sprintf("input has %d columns, expected %d", t.cols(), want),
		Err:          ErrDimensionMismatch,
	}
}
