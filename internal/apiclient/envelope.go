package apiclient

import (
	"bytes"
	"encoding/json"
)

// StatusSuccess is the envelope discriminator of a successful response.
const StatusSuccess = "success"

// Envelope is the backend's standard response wrapper.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Success reports whether the envelope carries the success discriminator.
func (e Envelope) Success() bool { return e.Status == StatusSuccess }

// HasData reports whether a non-null payload is present.
func (e Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}
