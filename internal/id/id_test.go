package id

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNode_Shape(t *testing.T) {
	pattern := regexp.MustCompile(`^img-\d{13,}-[A-Za-z0-9]{9}$`)
	id := NewNode()
	assert.True(t, pattern.MatchString(id), "unexpected node id shape: %q", id)
}

func TestNewNode_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewNode()
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}

func TestNewToken_Length(t *testing.T) {
	assert.Len(t, NewToken(), 32)
}
