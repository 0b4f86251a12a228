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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPLConfigWriteReadRoundTrip(t *testing.T) {
	bus := NewMockRegisterBus()
	pl := NewPLConfig(bus)

	require.NoError(t, pl.Write(CmdTPP, 2000))
	got, err := pl.Read(CmdTPP)
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, got, 1e-9)

	require.NoError(t, pl.Write(CmdPointsPerXfer, 64))
	got, err = pl.Read(CmdPointsPerXfer)
	require.NoError(t, err)
	assert.Equal(t, 64.0, got)
}

func TestPLConfigWriteOutOfRange(t *testing.T) {
	bus := NewMockRegisterBus()
	pl := NewPLConfig(bus)

	err := pl.Write(CmdPointsPerXfer, 1<<20)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestPLConfigFieldsDoNotClobberSharedRegister(t *testing.T) {
	bus := NewMockRegisterBus()
	pl := NewPLConfig(bus)

	require.NoError(t, pl.Write(CmdPointsPerXfer, 10))
	require.NoError(t, pl.Write(CmdIFMult, 7.8125))
	require.NoError(t, pl.Write(CmdRunPL, 1))

	ppt, err := pl.Read(CmdPointsPerXfer)
	require.NoError(t, err)
	assert.Equal(t, 10.0, ppt)

	ifm, err := pl.Read(CmdIFMult)
	require.NoError(t, err)
	assert.Equal(t, 7.8125, ifm)

	enabled, err := pl.Enabled()
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestPLConfigVerifyConfig(t *testing.T) {
	bus := NewMockRegisterBus()
	pl := NewPLConfig(bus)

	assert.ErrorIs(t, pl.VerifyConfig(), ErrPL)

	require.NoError(t, pl.Write(CmdPointsPerXfer, 8))
	require.NoError(t, pl.Write(CmdDeadTime, 100))
	require.NoError(t, pl.Write(CmdTriggerLength, 5))
	require.NoError(t, pl.Write(CmdTPP, 1000))
	assert.NoError(t, pl.VerifyConfig())
}

// TestPLConfigScaledRoundTripProperty checks, for a wide range of
// field/value combinations, that writing a scaled value and reading it
// back recovers the original to within one unit of the field's
// resolution.
func TestPLConfigScaledRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(tg *rapid.T) {
		cycles := rapid.Int64Range(1, (1<<32)-1).Draw(tg, "cycles")
		seconds := float64(cycles) / FCLK

		bus := NewMockRegisterBus()
		pl := NewPLConfig(bus)
		require.NoError(t, pl.Write(CmdTPP, seconds))
		got, err := pl.Read(CmdTPP)
		require.NoError(t, err)
		assert.InDelta(t, seconds, got, 1.0/FCLK)
	})
}
