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
// This file provides an in-memory register bus and DMA channel that stand
// in for the PL when no hardware is present, mirroring the reference
// implementation's mocked pynq/Overlay test fixture. It is used both by the
// test suite and by the server's -mock command-line flag.

package vna

import (
	"fmt"
	"math"
	"sync"
)

// MockRegisterBus is an in-memory RegisterBus backed by a small fixed set
// of word-addressed registers, keyed by the same physical addresses used by
// mmapRegisterBus.
type MockRegisterBus struct {
	mu   sync.Mutex
	regs map[uint32]uint32
}

// NewMockRegisterBus returns an empty mock register bus.
func NewMockRegisterBus() *MockRegisterBus {
	return &MockRegisterBus{regs: make(map[uint32]uint32)}
}

// ReadWord returns the last value written to addr, or zero if none.
func (b *MockRegisterBus) ReadWord(addr uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[addr], nil
}

// WriteWord stores value at addr.
func (b *MockRegisterBus) WriteWord(addr uint32, value uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs[addr] = value
	return nil
}

// MockChannel is an in-memory DMA Channel. Each Transfer call synthesizes
// plausible DUT/REF voltage samples so that tests and offline runs see
// non-zero, well-formed data without real PL hardware, and reproduces the
// quirk-word padding behavior described in the DMA contract.
type MockChannel struct {
	mu      sync.Mutex
	enabled func() (bool, error)
	seq     uint32
}

// NewMockChannel returns a MockChannel whose Transfer fails with
// ErrDmaNotAllowed unless enabled() reports the PL as enabled, exactly like
// the real hardware's reset-state behavior.
func NewMockChannel(enabled func() (bool, error)) *MockChannel {
	return &MockChannel{enabled: enabled}
}

// Transfer fills buf with dmaQuirkWords garbage words (leading if first,
// trailing otherwise) followed or preceded by synthesized sample triples.
func (c *MockChannel) Transfer(buf []uint32, first bool) error {
	if c.enabled != nil {
		ok, err := c.enabled()
		if err != nil {
			return err
		}
		if !ok {
			return ErrDmaNotAllowed
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nSamples := (len(buf) - dmaQuirkWords) / dmaWordsPerSample
	if nSamples < 0 {
		return fmt.Errorf("vna: mock transfer buffer too small (%d words)", len(buf))
	}

	quirk := make([]uint32, dmaQuirkWords)
	for i := range quirk {
		quirk[i] = 0xDEADBEEF
	}

	dataStart := 0
	if first {
		copy(buf[0:dmaQuirkWords], quirk)
		dataStart = dmaQuirkWords
	}

	const count = 1 << 20
	for i := 0; i < nSamples; i++ {
		c.seq++
		angle := float64(c.seq) * 0.037
		volts := 0.01*math.Cos(angle) + 0.002
		raw := int64(volts / rawToVolts * count)
		off := dataStart + i*dmaWordsPerSample
		buf[off] = uint32(raw & 0xFFFFFFFF)
		buf[off+1] = uint32((raw >> 32) & 0xFFFFFFFF)
		buf[off+2] = count
	}

	if !first {
		copy(buf[dataStart+nSamples*dmaWordsPerSample:], quirk)
	}

	return nil
}

// Wait is a no-op for the mock channel: Transfer already completed
// synchronously.
func (c *MockChannel) Wait() error {
	return nil
}

// MockThermalSensor is a constant-reading ThermalSensor for tests and
// offline runs.
type MockThermalSensor struct {
	CelsiusValue float64
}

// ReadCelsius returns the configured constant temperature.
func (s *MockThermalSensor) ReadCelsius() (float64, error) {
	return s.CelsiusValue, nil
}
