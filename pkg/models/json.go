package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

var errInvalidJSON = errors.New("invalid JSON")

// JSON is an encoded document stored in a text column. It is checked to be
// well formed on write and on read.
type JSON json.RawMessage

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, errInvalidJSON
	}
	return string(j), nil
}

// Scan implements sql.Scanner. The driver's buffer is copied.
func (j *JSON) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		raw = append([]byte(nil), v...)
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSON", value)
	}

	if !json.Valid(raw) {
		return fmt.Errorf("%w in database", errInvalidJSON)
	}
	*j = raw
	return nil
}

// MarshalJSON implements json.Marshaler.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("models.JSON: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[:0], data...)
	return nil
}

func (j JSON) String() string {
	return string(j)
}
