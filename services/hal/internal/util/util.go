package util

import "encoding/json"

// DecodeJSON fills dst from raw JSON ([]byte or string) or from any value
// that round-trips through encoding/json (maps from decoded config, structs).
func DecodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
