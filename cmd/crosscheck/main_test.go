package main

import (
	"testing"
	"time"

	"github.com/gomlx/crosscheck/precisions"
	"github.com/gomlx/crosscheck/sweep"
	"github.com/stretchr/testify/require"
)

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"interp", "pargo"}, splitList("interp, pargo"))
	require.Equal(t, []string{"fc"}, splitList(",fc,"))
	require.Empty(t, splitList(""))
	require.Empty(t, splitList(" , "))
}

func TestSelectGrids(t *testing.T) {
	require.Len(t, selectGrids(nil), len(sweep.DefaultGrids()))

	// Requested families come back in request order.
	grids := selectGrids([]string{"fc", "conv"})
	require.Len(t, grids, 2)
	require.Equal(t, "fc", grids[0].Family)
	require.Equal(t, "conv", grids[1].Family)
}

func TestSelectPrecisions(t *testing.T) {
	require.Equal(t, []precisions.Precision{precisions.Full, precisions.Quantized},
		selectPrecisions([]string{"full", "quantized"}))
	require.Empty(t, selectPrecisions(nil))
}

func TestFormatting(t *testing.T) {
	require.Equal(t, "0.00123", formatDelta(0.00123))
	require.Equal(t, "12ms", formatElapsed(12345*time.Microsecond))
	require.Equal(t, "1.5s", formatElapsed(1500*time.Millisecond))
}
