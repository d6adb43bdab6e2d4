package apiclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelope(t *testing.T) {
	assert.True(t, Envelope{Status: "success"}.Success())
	assert.False(t, Envelope{Status: "error"}.Success())

	assert.False(t, Envelope{}.HasData())
	assert.False(t, Envelope{Data: json.RawMessage(" null ")}.HasData())
	assert.True(t, Envelope{Data: json.RawMessage(`{"user":{}}`)}.HasData())
}
