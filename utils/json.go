package utils

import (
	"encoding/json"
)

// Marshal generic struct to JSON
func MarshalToJSON[T any](input T) ([]byte, error) {
	return json.Marshal(input)
}

