package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitInSubscriptionOrder(t *testing.T) {
	var l List[int]
	var got []string
	l.Subscribe(func(v int) { got = append(got, "a") })
	unsub := l.Subscribe(func(v int) { got = append(got, "b") })
	l.Subscribe(func(v int) { got = append(got, "c") })

	l.Emit(1)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	unsub()
	unsub()
	got = nil
	l.Emit(2)
	assert.Equal(t, []string{"a", "c"}, got)
	assert.Equal(t, 2, l.Len())
}

func TestEmitWithoutSubscribers(t *testing.T) {
	var l List[string]
	l.Emit("nobody")
	assert.Zero(t, l.Len())
}
