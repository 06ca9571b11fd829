package model

import "errors"

// Sentinel errors per spec §7's load-time error taxonomy. Concrete
// failures wrap one of these with fmt.Errorf("%w", ...) so callers can
// branch with errors.Is without parsing message text.
var (
	ErrUnsupportedArchitecture = errors.New("unsupported_architecture")
	ErrUnsupportedQuantForPath = errors.New("unsupported_quant_for_path")
	ErrMissingRequiredTensor   = errors.New("missing_required_tensor")
)

// MissingTensorError identifies which logical slot (e.g. "blk.3.attn_q.weight"
// or "output_norm") a load failed to resolve, per spec §4.4's requirement
// that missing-tensor failures name the missing slot.
type MissingTensorError struct {
	Slot string
}

func (e *MissingTensorError) Error() string {
	return "missing_required_tensor: " + e.Slot
}

func (e *MissingTensorError) Unwrap() error { return ErrMissingRequiredTensor }

func missingTensor(slot string) error {
	return &MissingTensorError{Slot: slot}
}
