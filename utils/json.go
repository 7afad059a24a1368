package utils

import (
	"bytes"
	"encoding/json"
)

// StructToMap converts a tagged struct into its JSON field map.
func StructToMap[T any](input T) (map[string]any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MapToStruct decodes a JSON field map into T.
func MapToStruct[T any](input map[string]any) (*T, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MapToStructStrict is MapToStruct but rejects fields T does not declare.
func MapToStructStrict[T any](input map[string]any) (*T, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var out T
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
