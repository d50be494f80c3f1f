package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an identifier that the server may send either as a JSON number or a
// JSON string. It is kept as its decimal/string form so that numeric server
// ids and client-generated "temp-" ids compare uniformly.
type ID string

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool {
	return id == ""
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// MarshalJSON encodes integer-looking ids as JSON numbers and everything else
// as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON number, a JSON string or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("protocol: invalid id %s: %w", data, err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("protocol: invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}
