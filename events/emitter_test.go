package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterDeliversByType(t *testing.T) {
	e := NewEmitter()
	var bought, relisted int
	e.Subscribe(EventBought, func(Event) { bought++ })
	e.Subscribe(EventRelisted, func(Event) { relisted++ })

	e.Emit(Event{Type: EventBought})
	e.Emit(Event{Type: EventBought})
	e.Emit(Event{Type: EventRelisted})

	assert.Equal(t, 2, bought)
	assert.Equal(t, 1, relisted)
}

func TestEmitterRecoversPanics(t *testing.T) {
	e := NewEmitter()
	var after bool
	e.Subscribe(EventBought, func(Event) { panic("boom") })
	e.Subscribe(EventBought, func(Event) { after = true })

	assert.NotPanics(t, func() { e.Emit(Event{Type: EventBought}) })
	assert.True(t, after)
}
