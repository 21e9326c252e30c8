package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowRejectsAfterBudgetExhausted(t *testing.T) {
	l := New(Config{Enabled: true, PerMinute: 2, PerHour: 1000})

	ok, _ := l.Allow("alice")
	assert.True(t, ok)
	ok, _ = l.Allow("alice")
	assert.True(t, ok)
	ok, retryAfter := l.Allow("alice")
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestAllowTracksPrincipalsIndependently(t *testing.T) {
	l := New(Config{Enabled: true, PerMinute: 1, PerHour: 1000})

	ok, _ := l.Allow("alice")
	assert.True(t, ok)
	ok, _ = l.Allow("bob")
	assert.True(t, ok)
}

func TestAllowDisabledAlwaysAllows(t *testing.T) {
	l := New(Config{Enabled: false})
	for i := 0; i < 10; i++ {
		ok, _ := l.Allow("alice")
		assert.True(t, ok)
	}
}
