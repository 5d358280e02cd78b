package tuya

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// The valve transmits its device-specific attributes as "raw" properties:
// Base64 text wrapping a compact JSON document. Two shapes are in play,
// {"totalswitch": bool} on the command side and {"valvestatelist": [bool...]}
// on the reporting side.

// EncodeRaw serializes v as compact JSON and Base64-encodes it
func EncodeRaw(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode raw property: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeRaw reverses EncodeRaw, returning the wrapped JSON document
func DecodeRaw(raw string) (json.RawMessage, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrMalformedProperty, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: payload is not JSON", ErrMalformedProperty)
	}
	return json.RawMessage(data), nil
}

// SwitchFlag reads the totalswitch field of a decoded main_switch payload
func SwitchFlag(raw string) (bool, error) {
	data, err := DecodeRaw(raw)
	if err != nil {
		return false, err
	}

	var payload struct {
		TotalSwitch *bool `json:"totalswitch"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedProperty, err)
	}
	if payload.TotalSwitch == nil {
		return false, fmt.Errorf("%w: totalswitch missing", ErrMalformedProperty)
	}
	return *payload.TotalSwitch, nil
}

// StateFlag reads the first element of valvestatelist from a decoded
// valve_state_list payload. The device reports one entry per outlet and this
// valve has exactly one, so index 0 is the whole story.
func StateFlag(raw string) (bool, error) {
	data, err := DecodeRaw(raw)
	if err != nil {
		return false, err
	}

	var payload struct {
		ValveStateList *[]bool `json:"valvestatelist"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedProperty, err)
	}
	if payload.ValveStateList == nil {
		return false, fmt.Errorf("%w: valvestatelist missing", ErrMalformedProperty)
	}
	if len(*payload.ValveStateList) == 0 {
		return false, fmt.Errorf("%w: valvestatelist is empty", ErrMalformedProperty)
	}
	return (*payload.ValveStateList)[0], nil
}
