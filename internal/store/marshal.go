package store

import (
	"fmt"

	"github.com/roach88/windi/internal/canon"
)

// marshalPayload converts a ledger payload to canonical JSON TEXT for
// storage. The stored text is exactly what the entry hash covers.
func marshalPayload(payload canon.Object) (string, error) {
	if payload == nil {
		payload = canon.Object{}
	}
	data, err := canon.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses canonical JSON TEXT back to an Object.
// Integers are decoded via json.Number so values above 2^53 survive.
func unmarshalPayload(data string) (canon.Object, error) {
	if data == "" || data == "{}" {
		return canon.Object{}, nil
	}
	v, err := canon.Parse([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	obj, ok := v.(canon.Object)
	if !ok {
		return nil, fmt.Errorf("unmarshal payload: expected object, got %T", v)
	}
	return obj, nil
}
