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
// This file implements the scaled bit-field MMIO adapter that sits on top of
// a raw 32-bit word-addressed register bus.

package vna

import (
	"fmt"
	"math"
	"math/bits"
)

// RegisterBus is the raw transport a PLConfig reads and writes 32-bit words
// through. Production code satisfies it with a memory-mapped physical
// address window; tests satisfy it with an in-memory fake.
type RegisterBus interface {
	ReadWord(addr uint32) (uint32, error)
	WriteWord(addr uint32, value uint32) error
}

// PLConfig owns the logical command-token -> MMIO field mapping and
// performs scaled reads and writes of those fields.
type PLConfig struct {
	bus RegisterBus
}

// NewPLConfig returns a PLConfig backed by the given register bus.
func NewPLConfig(bus RegisterBus) *PLConfig {
	return &PLConfig{bus: bus}
}

// Write packs logical value v into the bit-field addressed by cmd: the
// value is scaled, rounded to the nearest integer (a warning is logged if
// that rounds away a fraction), shifted into the field's mask, and merged
// with the register's current contents. It fails with ErrOutOfRange if the
// scaled value does not fit in the field.
func (c *PLConfig) Write(cmd byte, v float64) error {
	f, ok := mmioFields[cmd]
	if !ok {
		return fmt.Errorf("vna: unknown MMIO command %q", cmd)
	}

	shift := bits.TrailingZeros32(f.mask)
	scaled := v * f.scale
	rounded := math.Round(scaled)
	if rounded != scaled {
		Log(LOG_WARN, "rounding non-integer scaled value %.6f to %.0f for field %q", scaled, rounded, cmd)
	}
	if rounded < 0 || uint64(rounded) > uint64(f.mask>>uint(shift)) {
		return fmt.Errorf("%w: field %q value %v", ErrOutOfRange, cmd, v)
	}

	addr := regBaseAddr[f.reg]
	current, err := c.bus.ReadWord(addr)
	if err != nil {
		return err
	}
	next := (current &^ f.mask) | ((uint32(rounded) << uint(shift)) & f.mask)
	return c.bus.WriteWord(addr, next)
}

// Read reads the bit-field addressed by cmd and returns it as a real number,
// the inverse of Write's scaling.
func (c *PLConfig) Read(cmd byte) (float64, error) {
	f, ok := mmioFields[cmd]
	if !ok {
		return 0, fmt.Errorf("vna: unknown MMIO command %q", cmd)
	}

	shift := bits.TrailingZeros32(f.mask)
	addr := regBaseAddr[f.reg]
	val, err := c.bus.ReadWord(addr)
	if err != nil {
		return 0, err
	}
	field := (val & f.mask) >> uint(shift)
	return float64(field) / f.scale, nil
}

// VerifyConfig checks the PL state required before the PL may be enabled for
// a new sweep: points-per-transfer, time-per-point and dead-time must all be
// positive, time-per-point must exceed dead-time, and it must exceed the
// configured trigger pulse length.
func (c *PLConfig) VerifyConfig() error {
	ppt, err := c.Read(CmdPointsPerXfer)
	if err != nil {
		return err
	}
	tpp, err := c.Read(CmdTPP)
	if err != nil {
		return err
	}
	deadTime, err := c.Read(CmdDeadTime)
	if err != nil {
		return err
	}
	trigLen, err := c.Read(CmdTriggerLength)
	if err != nil {
		return err
	}

	switch {
	case ppt <= 0:
		return fmt.Errorf("%w: points-per-transfer must be positive, got %v", ErrPL, ppt)
	case tpp <= 0:
		return fmt.Errorf("%w: time-per-point must be positive, got %v", ErrPL, tpp)
	case deadTime <= 0:
		return fmt.Errorf("%w: dead-time must be positive, got %v", ErrPL, deadTime)
	case tpp <= deadTime:
		return fmt.Errorf("%w: time-per-point (%v) must exceed dead-time (%v)", ErrPL, tpp, deadTime)
	case tpp <= trigLen:
		return fmt.Errorf("%w: time-per-point (%v) must exceed trigger length (%v)", ErrPL, tpp, trigLen)
	}
	return nil
}

// SetEnabled writes the PL's run bit.
func (c *PLConfig) SetEnabled(enabled bool) error {
	v := 0.0
	if enabled {
		v = 1.0
	}
	return c.Write(CmdRunPL, v)
}

// Enabled reads back the PL's run bit.
func (c *PLConfig) Enabled() (bool, error) {
	v, err := c.Read(CmdRunPL)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
