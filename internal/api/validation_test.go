package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlateFormat(t *testing.T) {
	for _, ok := range []string{"ABC1234", "abc-123", "AB 12 CD", "7XYZ"} {
		assert.True(t, plateFormat.MatchString(ok), ok)
	}
	for _, bad := range []string{"", "A", "-ABC123", "ABC_123", "ABCDEFGHIJKLM"} {
		assert.False(t, plateFormat.MatchString(bad), bad)
	}
}
