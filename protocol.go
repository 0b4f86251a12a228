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
// This file defines the wire-level command tokens, response bytes, and
// per-field MMIO descriptors that make up the SoC control protocol.

package vna

// FCLK is the PL clock frequency, in MHz. The MMIO scale factors that convert
// microseconds into clock cycles are all expressed in terms of it.
const FCLK = 125

// POINTS_PER_PACKET is the wire-level batch size: the maximum number of
// points (4 float64 each) carried in a single data response.
const POINTS_PER_PACKET = 45

// Command tokens. Single-byte requests (CmdData, CmdQueueSize, CmdCPUTemp,
// CmdStopServer) carry no argument; the remaining tokens are followed by an
// ASCII-encoded integer argument.
const (
	CmdRunPL           byte = 'r'
	CmdDeadTime        byte = 'g'
	CmdTPP             byte = 'p'
	CmdTriggerLength   byte = 't'
	CmdTrigger0Config  byte = 'c'
	CmdTrigger1Config  byte = 'o'
	CmdPointsPerXfer   byte = 'a'
	CmdIFMult          byte = 'i'
	CmdData            byte = 'd'
	CmdCPUTemp         byte = 'T'
	CmdQueueSize       byte = 'q'
	CmdStopServer      byte = '!'
)

// Response bytes for commands that do not return a typed payload.
const (
	RespOK  byte = '*'
	RespErr byte = '?'
)

// regIndex identifies one of the PL's word-addressed 32-bit registers.
type regIndex int

const (
	regDeadTime regIndex = iota
	regTPP
	regTrig
	regGeneral
)

// Physical base addresses of the PL registers, word-aligned 32-bit.
var regBaseAddr = map[regIndex]uint32{
	regTrig:     0x41200000,
	regGeneral:  0x41200008,
	regDeadTime: 0x42000000,
	regTPP:      0x42000008,
}

// mmioField describes how a logical command token maps onto a bit-field of
// one of the PL registers: a scale factor applied to the logical value
// before it is packed into the field, the register it lives in, and the
// field's bit-mask within that register.
type mmioField struct {
	scale float64
	reg   regIndex
	mask  uint32
}

// mmioFields is the full command-token -> field-descriptor table, populated
// from the PL's fixed register map.
var mmioFields = map[byte]mmioField{
	CmdTPP:            {scale: FCLK, reg: regTPP, mask: 0xFFFFFFFF},
	CmdDeadTime:       {scale: FCLK, reg: regDeadTime, mask: 0xFFFFFFFF},
	CmdTriggerLength:  {scale: FCLK, reg: regTrig, mask: 0x00FFFFFF},
	CmdTrigger0Config: {scale: 1, reg: regTrig, mask: 0x0F000000},
	CmdTrigger1Config: {scale: 1, reg: regTrig, mask: 0xF0000000},
	CmdPointsPerXfer:  {scale: 1, reg: regGeneral, mask: 0xFFFF0000},
	CmdIFMult:         {scale: 256.0 / FCLK, reg: regGeneral, mask: 0x0000FF00},
	CmdRunPL:          {scale: 1, reg: regGeneral, mask: 0x00000001},
}

// rawToVolts is the scale factor applied to a decoded raw DMA sample to
// obtain a voltage.
const rawToVolts = 1.0 / (1 << 25)

// dmaWordsPerSample is the number of 32-bit words making up one raw DMA
// sample triple (lo, hi, count).
const dmaWordsPerSample = 3

// dmaQuirkWords is the number of garbage words prepended (on the first
// transfer after the PL is enabled) or left trailing (on every subsequent
// transfer) by the hardware.
const dmaQuirkWords = 4
