package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadBytes(t *testing.T) {
	b, ok := payloadBytes("abc")
	assert.True(t, ok)
	assert.Equal(t, []byte("abc"), b)

	b, ok = payloadBytes([]byte{1, 2})
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2}, b)

	_, ok = payloadBytes(42)
	assert.False(t, ok)
}

func TestClientKeyNamespacing(t *testing.T) {
	c := &Client{prefix: "cardmarket:"}
	assert.Equal(t, "cardmarket:lock:settler", c.key("lock", "settler"))
	assert.Equal(t, "cardmarket:ratelimit:1.2.3.4", c.key("ratelimit", "1.2.3.4"))
}
