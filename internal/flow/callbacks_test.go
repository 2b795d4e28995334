package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnsCallback(t *testing.T) {
	own := []string{"exchange:start", "exchange:confirm", "excur:", "exdesc:skip"}

	assert.True(t, OwnsCallback(CallbackCancel))
	assert.True(t, OwnsCallback(CallbackBack, own...))
	assert.True(t, OwnsCallback("exchange:confirm", own...))
	assert.True(t, OwnsCallback("excur:USD", own...))
	assert.True(t, OwnsCallback("exdesc:skip", own...))

	assert.False(t, OwnsCallback("bid_accept:1", own...))
	assert.False(t, OwnsCallback("stage:home", own...))
	assert.False(t, OwnsCallback("exdesc:other", own...))
	assert.False(t, OwnsCallback("", own...))
}

func TestOwnsCallbackSkipsEmptyEntries(t *testing.T) {
	assert.False(t, OwnsCallback("anything", ""))
}
