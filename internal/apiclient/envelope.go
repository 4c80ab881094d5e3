package apiclient

import (
	"encoding/json"
	"fmt"
)

// Envelope mirrors the server's response wrapper.
type Envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody is the structured error inside an Envelope.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// DecodeData unmarshals the envelope's data field into dst.
func DecodeData(resp *Response, dst any) error {
	var env Envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if dst == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
