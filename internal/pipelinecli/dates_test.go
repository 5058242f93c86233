package pipelinecli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireDateStripsDashes(t *testing.T) {
	got, err := WireDate("2024-03-07")
	require.NoError(t, err)
	assert.Equal(t, "20240307", got)
}

func TestWireDateEmptyPassesThrough(t *testing.T) {
	got, err := WireDate("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestWireDateRejectsMalformed(t *testing.T) {
	_, err := WireDate("2024/03/07")
	assert.Error(t, err)

	_, err = WireDate("24-03-07")
	assert.Error(t, err)
}
