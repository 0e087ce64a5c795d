package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsObjectID(t *testing.T) {
	assert.True(t, IsObjectID("682c5990bf4a775c8de9598a"))
	assert.True(t, IsObjectID("682C5990BF4A775C8DE9598A"))
	assert.False(t, IsObjectID("682c5990bf4a775c8de9598"))
	assert.False(t, IsObjectID("682c5990bf4a775c8de9598z"))
	assert.False(t, IsObjectID(""))
}

func TestValidEntityID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"682c5990bf4a775c8de9598a", true},
		{"6f1c1b7e-3a54-4f0e-9d2a-0d5a4d5c2b11", true},
		{" 682c5990bf4a775c8de9598a ", true},
		{"deal-42", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidEntityID(tt.id))
		})
	}
}
