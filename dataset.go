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
//
// Description:
//
// This file assembles the derived S-parameter dataset from a raw point
// matrix and a frequency/time axis.

package vna

import (
	"math"
	"math/cmplx"
	"time"
)

// Result is the per-sweep derived dataset: named arrays indexed by the
// same point index as the frequency axis. A plain record of named slices
// is used rather than a labelled multi-array type, since the labels carry
// no semantics the core needs.
type Result struct {
	Frequency []float64
	Time      []float64

	DutReV, DutImV, DutMagV, DutMagDBm, DutPhase []float64
	RefReV, RefImV, RefMagV, RefMagDBm, RefPhase []float64

	S21Re, S21Im, S21Mag, S21MagDB, S21Phase, S21PhaseUnwrapped []float64

	Config          ConfigSnapshot
	StartTime       time.Time
	StopTime        time.Time
	StartTempC      float64
	StopTempC       float64
}

// BuildResult derives the full dataset from N raw points (I_dut, Q_dut,
// I_ref, Q_ref), a frequency axis, and a time axis of equal length N.
func BuildResult(points []Point, freq, t []float64) Result {
	n := len(points)
	r := Result{
		Frequency: freq,
		Time:      t,
		DutReV:    make([]float64, n), DutImV: make([]float64, n),
		DutMagV: make([]float64, n), DutMagDBm: make([]float64, n), DutPhase: make([]float64, n),
		RefReV: make([]float64, n), RefImV: make([]float64, n),
		RefMagV: make([]float64, n), RefMagDBm: make([]float64, n), RefPhase: make([]float64, n),
		S21Re: make([]float64, n), S21Im: make([]float64, n),
		S21Mag: make([]float64, n), S21MagDB: make([]float64, n), S21Phase: make([]float64, n),
	}

	pDut := make([]complex128, n)
	pRef := make([]complex128, n)
	s21 := make([]complex128, n)

	for i, p := range points {
		pDut[i] = complex(p.IDut, p.QDut)
		pRef[i] = complex(p.IRef, p.QRef)
		s21[i] = cmplx.Pow(pDut[i]/pRef[i], 2)

		r.DutReV[i], r.DutImV[i] = real(pDut[i]), imag(pDut[i])
		r.DutMagV[i] = cmplx.Abs(pDut[i])
		r.DutMagDBm[i] = 20*log10(r.DutMagV[i]) + 10
		r.DutPhase[i] = cmplx.Phase(pDut[i])

		r.RefReV[i], r.RefImV[i] = real(pRef[i]), imag(pRef[i])
		r.RefMagV[i] = cmplx.Abs(pRef[i])
		r.RefMagDBm[i] = 20*log10(r.RefMagV[i]) + 10
		r.RefPhase[i] = cmplx.Phase(pRef[i])

		r.S21Re[i], r.S21Im[i] = real(s21[i]), imag(s21[i])
		r.S21Mag[i] = cmplx.Abs(s21[i])
		r.S21MagDB[i] = 10 * log10(r.S21Mag[i])
		r.S21Phase[i] = cmplx.Phase(s21[i])
	}

	r.S21PhaseUnwrapped = unwrapPhase(r.S21Phase, freq)

	return r
}

// unwrapPhase performs a monotonic phase unwrap, then subtracts the
// best-fit linear ramp connecting the first and last unwrapped samples so
// that the endpoints match. This removes the linear phase drift that a
// long frequency sweep otherwise accumulates from propagation delay,
// leaving only the signal of interest.
func unwrapPhase(phase, freq []float64) []float64 {
	n := len(phase)
	if n == 0 {
		return nil
	}

	unwrapped := make([]float64, n)
	unwrapped[0] = phase[0]
	for i := 1; i < n; i++ {
		delta := phase[i] - phase[i-1]
		for delta > math.Pi {
			delta -= 2 * math.Pi
		}
		for delta < -math.Pi {
			delta += 2 * math.Pi
		}
		unwrapped[i] = unwrapped[i-1] + delta
	}

	if n < 2 {
		return unwrapped
	}

	avgSlope := (unwrapped[n-1] - unwrapped[0]) / (freq[n-1] - freq[0])
	out := make([]float64, n)
	for i := range unwrapped {
		ramp := (freq[i] - freq[0]) * avgSlope
		out[i] = unwrapped[i] - ramp
	}
	return out
}

func log10(v float64) float64 {
	return math.Log10(v)
}
