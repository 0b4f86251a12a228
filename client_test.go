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
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSecondsToMicrosTruncatesRatherThanRounds(t *testing.T) {
	assert.Equal(t, int64(1999), secondsToMicros(1999.9999e-6))
	assert.Equal(t, int64(0), secondsToMicros(0.9999e-6))
	assert.Equal(t, int64(1000), secondsToMicros(1e-3))
}

func TestSendTriggerConfigFlagPacking(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	recv := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := srv.Read(buf)
		recv <- string(buf[:n])
		srv.Write([]byte{RespOK})
	}()

	c := &Client{conn: cli}
	require.NoError(t, c.SendTriggerConfig(0, false, true, true))

	got := <-recv
	// positive=false sets bit0, sweep=true sets bit1, step=true sets bit2:
	// 1 | 2 | 4 == 7.
	assert.Equal(t, "c7", got)
}

func TestSendTriggerConfigRejectsBadTriggerNumber(t *testing.T) {
	c := &Client{conn: nil}
	err := c.SendTriggerConfig(2, true, true, true)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestClientRequestDataFailsOnQueuePausedResponse(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	go func() {
		buf := make([]byte, 8)
		srv.Read(buf)
		srv.Write([]byte{RespErr})
	}()

	c := &Client{conn: cli}
	data, err := c.RequestData()
	assert.Nil(t, data)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestClientRequestDataRejectsMisalignedLength(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	go func() {
		buf := make([]byte, 8)
		srv.Read(buf)
		srv.Write(make([]byte, 17))
	}()

	c := &Client{conn: cli}
	_, err := c.RequestData()
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestClientRequestDataDecodesNativeFloat64s(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	want := []float64{1.5, -2.25, 3.0, 0.125}
	go func() {
		buf := make([]byte, 8)
		srv.Read(buf)
		srv.Write(floatsToBytes(want))
	}()

	c := &Client{conn: cli}
	got, err := c.RequestData()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestClientQueueSizeRejectsWrongLength(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	go func() {
		buf := make([]byte, 8)
		srv.Read(buf)
		srv.Write([]byte{0x01})
	}()

	c := &Client{conn: cli}
	_, err := c.QueueSize()
	assert.ErrorIs(t, err, ErrProtocol)
}

// TestFloatsToBytesRoundTripsThroughRequestDataProperty checks, for
// arbitrary float64 slices, that encoding with floatsToBytes and decoding
// through the client's native-byte-order parser recovers the exact values.
func TestFloatsToBytesRoundTripsThroughRequestDataProperty(t *testing.T) {
	rapid.Check(t, func(tg *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(tg, "n")
		values := make([]float64, n)
		for i := range values {
			values[i] = rapid.Float64().Draw(tg, "v")
		}

		srv, cli := net.Pipe()
		defer srv.Close()
		defer cli.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			buf := make([]byte, 8)
			srv.Read(buf)
			srv.Write(floatsToBytes(values))
		}()

		c := &Client{conn: cli}
		got, err := c.RequestData()
		require.NoError(tg, err)
		<-done

		if len(values) == 0 {
			assert.Len(tg, got, 0)
			return
		}
		assert.InDeltaSlice(tg, values, got, 0)
	})
}
