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
// This file defines the sentinel and wrapped error values used throughout the
// vna package. Errors are plain values inspected with errors.Is/errors.As,
// never panics, for every failure mode a caller is expected to handle.

package vna

import "errors"

var (
	// ErrConfig indicates a SweepConfig is missing a required field, mixes
	// mutually exclusive options, or otherwise fails validation before any
	// hardware or generator activity has taken place.
	ErrConfig = errors.New("vna: configuration error")

	// ErrAlreadyRunning names the already-running condition. The package
	// does not return it: a Run on a SweepConfig that is already running
	// fails with ErrConfig.
	ErrAlreadyRunning = errors.New("vna: sweep already running")

	// ErrReadiness indicates a pre-run health check failed: a missing clock
	// generator or a high ping RTT escalated by failOnWarning, a failed ping
	// or capability query, or SetupTest finding no usable DUT/reference
	// signal. A generator lacking a required capability is reported as
	// ErrNotImplemented instead.
	ErrReadiness = errors.New("vna: readiness check failed")

	// ErrProtocol indicates a malformed wire response: wrong length, a
	// length not a multiple of the expected element size, or an
	// unexpected response byte.
	ErrProtocol = errors.New("vna: protocol error")

	// ErrDmaNotAllowed is returned when a data transfer is requested while
	// the PL is disabled. The PL's reset state makes the transfer hang
	// indefinitely otherwise, so this must be checked before it is
	// attempted.
	ErrDmaNotAllowed = errors.New("vna: dma transfer not allowed while PL disabled")

	// ErrPL indicates a PL configuration-state assertion failed (e.g.
	// points-per-transfer, time-per-point, or dead-time not set before
	// enabling the PL).
	ErrPL = errors.New("vna: PL verify-config failed")

	// ErrOutOfRange is returned by the MMIO adapter when a scaled value
	// would not fit in its target bit-field.
	ErrOutOfRange = errors.New("vna: value out of range for register field")

	// ErrServerStopped is the graceful-stop sentinel returned by the
	// server's accept loop once a client has requested shutdown. It is
	// not logged as a failure.
	ErrServerStopped = errors.New("vna: server stopped")

	// ErrNotImplemented marks API surface that is declared by the
	// specification but intentionally unexecuted in this core (the
	// non-blocking start/get/stop API, and SetConfigData), and also reports
	// a sweep mode that Run does not execute and a generator that lacks a
	// capability the sweep needs.
	ErrNotImplemented = errors.New("vna: not implemented")
)
