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
// This file implements the DMA buffer interface: allocation of the
// quirk-word-padded transfer buffer, issuing transfers, and decoding raw
// sample triples to volts.

package vna

import "fmt"

// Channel is the raw DMA transport a DMABuffer drives. Transfer initiates a
// transfer of buf and returns once the hardware has accepted it; Wait
// blocks until the transfer has actually completed. MockChannel is the only
// implementation in this module; it backs the tests and the server's mock
// mode. No hardware-backed Channel is provided.
type Channel interface {
	Transfer(buf []uint32, first bool) error
	Wait() error
}

// DMABuffer owns the PL's DMA output buffer and decodes it into Points.
type DMABuffer struct {
	ch              Channel
	pointsPerXfer   int
	buf             []uint32
	firstAfterReset bool
}

// NewDMABuffer returns a DMABuffer with the given initial
// points-per-transfer, ready for its first (quirk-word-prefixed) transfer.
func NewDMABuffer(ch Channel, pointsPerTransfer int) *DMABuffer {
	d := &DMABuffer{ch: ch, firstAfterReset: true}
	d.allocate(pointsPerTransfer)
	return d
}

func (d *DMABuffer) allocate(pointsPerTransfer int) {
	if pointsPerTransfer < 1 {
		pointsPerTransfer = 1
	}
	d.pointsPerXfer = pointsPerTransfer
	nWords := pointsPerTransfer*dmaWordsPerSample + dmaQuirkWords
	d.buf = make([]uint32, nWords)
}

// SetPointsPerTransfer reallocates the buffer for the new transfer size and
// writes it into the PL's points-per-transfer field.
func (d *DMABuffer) SetPointsPerTransfer(n int, pl *PLConfig) error {
	if err := pl.Write(CmdPointsPerXfer, float64(n)); err != nil {
		return err
	}
	d.allocate(n)
	d.firstAfterReset = true
	return nil
}

// NotifyDisabled must be called whenever the PL's enable bit transitions to
// disabled, so the next RequestBlock correctly expects leading quirk words.
func (d *DMABuffer) NotifyDisabled() {
	d.firstAfterReset = true
}

// RequestBlock initiates a transfer, waits for completion, strips the
// quirk words, and decodes the remaining triples into a flat sequence of
// voltages (one Point = 4 consecutive voltages). The first transfer after
// the PL was (re-)enabled is indicated implicitly by firstAfterReset.
func (d *DMABuffer) RequestBlock(plEnabled bool) ([]float64, error) {
	if !plEnabled {
		return nil, ErrDmaNotAllowed
	}

	first := d.firstAfterReset
	if err := d.ch.Transfer(d.buf, first); err != nil {
		return nil, err
	}
	if err := d.ch.Wait(); err != nil {
		return nil, err
	}
	d.firstAfterReset = false

	var samples []uint32
	if first {
		samples = d.buf[dmaQuirkWords:]
	} else {
		samples = d.buf[:len(d.buf)-dmaQuirkWords]
	}

	if len(samples)%dmaWordsPerSample != 0 {
		return nil, fmt.Errorf("%w: dma sample buffer length %d not a multiple of %d", ErrProtocol, len(samples), dmaWordsPerSample)
	}

	volts := make([]float64, 0, len(samples)/dmaWordsPerSample)
	for i := 0; i+dmaWordsPerSample <= len(samples); i += dmaWordsPerSample {
		lo := samples[i]
		hi := samples[i+1]
		count := samples[i+2]
		raw := signExtend64((uint64(hi) << 32) | uint64(lo))
		v := float64(raw) / float64(count) * rawToVolts
		volts = append(volts, v)
	}
	return volts, nil
}

// signExtend64 reinterprets a 64-bit two's-complement bit pattern as a
// signed integer.
func signExtend64(unsigned uint64) int64 {
	return int64(unsigned ^ 0x8000000000000000 - 0x8000000000000000)
}
