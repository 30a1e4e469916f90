package preparer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zerfoo/metagraph/preparer"
)

func TestMode_String(t *testing.T) {
	assert.Equal(t, "stream", preparer.Stream.String())
	assert.Equal(t, "batch", preparer.Batch.String())
}

func TestMode_ZeroValueIsStream(t *testing.T) {
	var m preparer.Mode
	assert.Equal(t, preparer.Stream, m)
}
