// The MIT License
//
// Copyright (c) 2017-2018 by the author(s)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package vna

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildResultDerivesS21FromPoints(t *testing.T) {
	points := []Point{
		{IDut: 1, QDut: 0, IRef: 2, QRef: 0},
		{IDut: 0, QDut: 1, IRef: 1, QRef: 0},
	}
	freq := []float64{1e9, 2e9}
	ts := []float64{0, 1e-3}

	r := BuildResult(points, freq, ts)

	require.Len(t, r.S21Mag, 2)
	assert.InDelta(t, 1.0, r.DutMagV[0], 1e-12)
	assert.InDelta(t, 2.0, r.RefMagV[0], 1e-12)

	wantS21_0 := cmplx.Pow(complex(1, 0)/complex(2, 0), 2)
	assert.InDelta(t, cmplx.Abs(wantS21_0), r.S21Mag[0], 1e-12)
	assert.InDelta(t, real(wantS21_0), r.S21Re[0], 1e-12)

	assert.InDelta(t, 20*math.Log10(r.DutMagV[0])+10, r.DutMagDBm[0], 1e-9)
	assert.InDelta(t, 10*math.Log10(r.S21Mag[0]), r.S21MagDB[0], 1e-9)
}

func TestBuildResultEmptyPointsReturnsEmptySlices(t *testing.T) {
	r := BuildResult(nil, nil, nil)
	assert.Len(t, r.S21Mag, 0)
	assert.Nil(t, r.S21PhaseUnwrapped)
}

func TestUnwrapPhaseRemovesTwoPiJumpsAndMatchesEndpoints(t *testing.T) {
	// A genuinely wrapped ramp: phase increases by 3*pi/2 per step, which
	// wraps the raw math.Atan2-style output back into (-pi, pi].
	raw := make([]float64, 5)
	freq := make([]float64, 5)
	for i := range raw {
		trueAngle := float64(i) * 3 * math.Pi / 2
		raw[i] = math.Atan2(math.Sin(trueAngle), math.Cos(trueAngle))
		freq[i] = float64(i)
	}

	out := unwrapPhase(raw, freq)
	require.Len(t, out, 5)

	// Unwrapping turns each wrapped step into a step of -pi/2, so no two
	// consecutive samples differ by more than pi. The linear-ramp
	// subtraction then leaves the first sample at its raw value (0) and
	// pulls the last sample onto the first.
	assert.InDelta(t, 0, out[0], 1e-9)
	assert.InDelta(t, out[0], out[4], 1e-9)
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, math.Abs(out[i]-out[i-1]), math.Pi+1e-9)
	}
}

func TestUnwrapPhaseSingleSample(t *testing.T) {
	out := unwrapPhase([]float64{1.23}, []float64{1e9})
	require.Len(t, out, 1)
	assert.InDelta(t, 1.23, out[0], 1e-12)
}
