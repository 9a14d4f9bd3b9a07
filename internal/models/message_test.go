package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessageBefore(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := Message{ID: 1, CreatedAt: t0}
	b := Message{ID: 2, CreatedAt: t0}
	c := Message{ID: 0, CreatedAt: t0.Add(time.Microsecond)}

	assert.True(t, a.Before(b), "same timestamp falls back to id")
	assert.False(t, b.Before(a))
	assert.True(t, b.Before(c), "earlier timestamp wins over id")
	assert.False(t, a.Before(a))
}
