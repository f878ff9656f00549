package light

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"

	relay_errors "traffic-light/pkg/errors"
)

// Encode serializes e as {"color":"<value>"}. Only valid colors are encoded.
func Encode(e Event) ([]byte, error) {
	if !e.Color.Valid() {
		return nil, fmt.Errorf("%w: invalid color %q", relay_errors.ErrSerialization, e.Color)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", relay_errors.ErrSerialization, err)
	}
	return data, nil
}

// DecodeEvent parses a payload received from the broker. Unknown fields and
// colors outside the closed set are rejected.
func DecodeEvent(payload []byte) (Event, error) {
	var raw struct {
		Color *string `json:"color"`
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", relay_errors.ErrSerialization, err)
	}
	if raw.Color == nil {
		return Event{}, fmt.Errorf("%w: missing color", relay_errors.ErrSerialization)
	}
	c, err := ParseColor(*raw.Color)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", relay_errors.ErrSerialization, err)
	}
	return Event{Color: c}, nil
}
