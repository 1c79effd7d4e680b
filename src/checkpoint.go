package flow

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

// Format selects the checkpoint encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat accepts "json" or "cbor".
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatCBOR:
		return f, nil
	default:
		return "", errorf("unknown checkpoint format %q", s)
	}
}

const (
	kindNormFlow      = "normalizing_flow"
	kindVelocityField = "velocity_field"
)

// ParamState is one serialized parameter tensor.
type ParamState struct {
	Shape []int     `json:"shape" cbor:"shape"`
	Data  []float64 `json:"data" cbor:"data"`
}

// Checkpoint is the on-disk form of a model.
type Checkpoint struct {
	Kind          string               `json:"kind" cbor:"kind"`
	Version       string               `json:"version" cbor:"version"`
	Meta          map[string]string    `json:"meta,omitempty" cbor:"meta,omitempty"`
	NormFlow      *NormFlowConfig      `json:"norm_flow,omitempty" cbor:"norm_flow,omitempty"`
	VelocityField *VelocityFieldConfig `json:"velocity_field,omitempty" cbor:"velocity_field,omitempty"`
	Permutations  [][]int              `json:"permutations,omitempty" cbor:"permutations,omitempty"`
	Params        []ParamState         `json:"params" cbor:"params"`
}

// Model is implemented by *NormalizingFlow and *VelocityField.
type Model interface {
	checkpoint() *Checkpoint
	restore(ck *Checkpoint) error
}

func paramStates(params []*tensor) []ParamState {
	out := make([]ParamState, len(params))
	for i, p := range params {
		out[i] = ParamState{Shape: slices.Clone(p.shape), Data: slices.Clone(p.data)}
	}
	return out
}

func restoreParams(params []*tensor, states []ParamState) error {
	if len(params) != len(states) {
		return errorf("checkpoint has %d parameter tensors, model has %d", len(states), len(params))
	}
	for i, p := range params {
		if !slices.Equal(p.shape, states[i].Shape) || len(states[i].Data) != len(p.data) {
			return errorf("parameter %d: checkpoint shape %v, model shape %v", i, states[i].Shape, p.shape)
		}
	}
	for i, p := range params {
		copy(p.data, states[i].Data)
	}
	return nil
}

func (nf *NormalizingFlow) checkpoint() *Checkpoint {
	cfg := nf.cfg
	ck := &Checkpoint{Kind: kindNormFlow, Version: Version, NormFlow: &cfg, Params: paramStates(nf.parameters())}
	for _, l := range nf.layers {
		if l.Kind == KindPermutation {
			ck.Permutations = append(ck.Permutations, l.Permutation.Indices())
		}
	}
	return ck
}

func (nf *NormalizingFlow) restore(ck *Checkpoint) error {
	if ck.Kind != kindNormFlow || ck.NormFlow == nil {
		return errorf("checkpoint kind %q is not a normalizing flow", ck.Kind)
	}
	if *ck.NormFlow != nf.cfg {
		return errorf("checkpoint config %+v does not match model config %+v", *ck.NormFlow, nf.cfg)
	}
	perms := make([]*Permutation, 0, len(ck.Permutations))
	for _, idx := range ck.Permutations {
		p, err := NewPermutation(idx)
		if err != nil {
			return err
		}
		if len(idx) != nf.cfg.LatentDim {
			return fmt.Errorf("%w: checkpoint permutation %v for latent dim %d", ErrDimensionMismatch, idx, nf.cfg.LatentDim)
		}
		perms = append(perms, p)
	}
	if len(perms) != max(nf.cfg.NumLayers-1, 0) {
		return errorf("checkpoint has %d permutations, expected %d", len(perms), nf.cfg.NumLayers-1)
	}
	if err := restoreParams(nf.parameters(), ck.Params); err != nil {
		return err
	}
	k := 0
	for i := range nf.layers {
		if nf.layers[i].Kind == KindPermutation {
			nf.layers[i].Permutation = perms[k]
			k++
		}
	}
	return nil
}

func (vf *VelocityField) checkpoint() *Checkpoint {
	cfg := vf.cfg
	return &Checkpoint{Kind: kindVelocityField, Version: Version, VelocityField: &cfg, Params: paramStates(vf.parameters())}
}

func (vf *VelocityField) restore(ck *Checkpoint) error {
	if ck.Kind != kindVelocityField || ck.VelocityField == nil {
		return errorf("checkpoint kind %q is not a velocity field", ck.Kind)
	}
	if *ck.VelocityField != vf.cfg {
		return errorf("checkpoint config %+v does not match model config %+v", *ck.VelocityField, vf.cfg)
	}
	return restoreParams(vf.parameters(), ck.Params)
}

// SaveCheckpoint writes model to w. meta is stored verbatim.
func SaveCheckpoint(w io.Writer, model Model, format Format, meta map[string]string) error {
	ck := model.checkpoint()
	ck.Meta = meta
	switch format {
	case FormatJSON:
		return json.NewEncoder(w).Encode(ck)
	case FormatCBOR:
		return cbor.NewEncoder(w).Encode(ck)
	default:
		return errorf("unknown checkpoint format %q", format)
	}
}

// ReadCheckpoint decodes a checkpoint without building a model.
func ReadCheckpoint(r io.Reader, format Format) (*Checkpoint, error) {
	var ck Checkpoint
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&ck)
	case FormatCBOR:
		err = cbor.NewDecoder(r).Decode(&ck)
	default:
		return nil, errorf("unknown checkpoint format %q", format)
	}
	if err != nil {
		return nil, errorf("decode %s checkpoint: %v", format, err)
	}
	return &ck, nil
}

// LoadCheckpoint overwrites model's parameters (and permutations) from r.
// The checkpoint must match the model's kind, config and shapes.
func LoadCheckpoint(r io.Reader, model Model, format Format) error {
	ck, err := ReadCheckpoint(r, format)
	if err != nil {
		return err
	}
	return model.restore(ck)
}

// LoadNormalizingFlow rebuilds a flow from a checkpoint.
func LoadNormalizingFlow(r io.Reader, format Format) (*NormalizingFlow, error) {
	ck, err := ReadCheckpoint(r, format)
	if err != nil {
		return nil, err
	}
	if ck.NormFlow == nil {
		return nil, errorf("checkpoint kind %q is not a normalizing flow", ck.Kind)
	}
	nf, err := NewNormalizingFlow(*ck.NormFlow, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	if err := nf.restore(ck); err != nil {
		return nil, err
	}
	return nf, nil
}

// LoadVelocityField rebuilds a velocity field from a checkpoint.
func LoadVelocityField(r io.Reader, format Format) (*VelocityField, error) {
	ck, err := ReadCheckpoint(r, format)
	if err != nil {
		return nil, err
	}
	if ck.VelocityField == nil {
		return nil, errorf("checkpoint kind %q is not a velocity field", ck.Kind)
	}
	vf, err := NewVelocityField(*ck.VelocityField, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	if err := vf.restore(ck); err != nil {
		return nil, err
	}
	return vf, nil
}
