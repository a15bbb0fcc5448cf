// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audio

import "math"

// =============================================================================
// BAND LEVELS
// =============================================================================

// levelBins is the number of frequency bins evaluated per sample window.
// Chosen so the three bands each cover a dozen bins while the per-tick
// cost stays negligible next to the capture itself.
const levelBins = 36

// BandLevels reduces a PCM window to a low/mid/high amplitude vector, each
// component normalized to [0,1]. An empty window yields the zero vector.
func BandLevels(samples []int16) [3]float64 {
	if len(samples) == 0 {
		return [3]float64{}
	}

	mags := binMagnitudes(samples)

	var out [3]float64
	per := len(mags) / 3
	for band := 0; band < 3; band++ {
		var sum float64
		for i := band * per; i < (band+1)*per; i++ {
			sum += mags[i]
		}
		out[band] = clamp01(sum / float64(per))
	}
	return out
}

// binMagnitudes computes normalized spectral magnitudes for the low end of
// the spectrum via direct DFT. The window is short and the bin count fixed,
// so the naive transform is fine here.
func binMagnitudes(samples []int16) []float64 {
	n := len(samples)
	mags := make([]float64, levelBins)
	for k := 0; k < levelBins; k++ {
		var re, im float64
		// Skip bin 0 (DC offset carries no voice energy).
		freq := 2 * math.Pi * float64(k+1) / float64(n)
		for t, s := range samples {
			v := float64(s) / 32768.0
			re += v * math.Cos(freq*float64(t))
			im -= v * math.Sin(freq*float64(t))
		}
		mags[k] = 2 * math.Sqrt(re*re+im*im) / float64(n)
	}
	return mags
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
