package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a free-form jsonb object.
type JSONMap map[string]interface{}

// Value marshals the map for persistence.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return marshalJSON(m)
}

// Scan unmarshals a jsonb column.
func (m *JSONMap) Scan(value interface{}) error {
	*m = JSONMap{}
	return scanJSON(value, m)
}

// CountMap holds bucket counts such as per-category totals.
type CountMap map[string]int

// Value marshals the counts for persistence.
func (m CountMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return marshalJSON(m)
}

// Scan unmarshals a jsonb column.
func (m *CountMap) Scan(value interface{}) error {
	*m = CountMap{}
	return scanJSON(value, m)
}

// RawJSON keeps opaque configuration blobs untouched.
type RawJSON json.RawMessage

// Value returns the raw bytes, defaulting to null.
func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

// Scan copies the raw column bytes.
func (r *RawJSON) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	*r = append((*r)[:0], data...)
	return nil
}

// MarshalJSON emits the stored document verbatim.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON stores the incoming document verbatim.
func (r *RawJSON) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

func marshalJSON(v interface{}) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return data, nil
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported jsonb source %T", value)
	}
}

func scanJSON(value interface{}, dest interface{}) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return nil
}
