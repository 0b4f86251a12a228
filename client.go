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
// This file implements the TCP client: a framed ASCII-send / binary-receive
// connection to the SoC server, plus typed helpers for the wire protocol's
// scaling conventions.

package vna

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"
)

// clientBufSize is the size of the single receive buffer used for every
// response: large enough for one full data packet.
const clientBufSize = POINTS_PER_PACKET * 32

const dialTimeout = 5 * time.Second

// Client is a scoped connection to the SoC server.
type Client struct {
	conn net.Conn
}

// Dial connects to addr ("host:port") with a 5 second connect timeout.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("vna: connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// sendReceive writes data in full and returns a single receive of up to
// clientBufSize bytes.
func (c *Client) sendReceive(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}
	if len(data) > clientBufSize {
		return nil, fmt.Errorf("%w: command %q exceeds buffer size", ErrProtocol, data)
	}
	if _, err := c.conn.Write([]byte(data)); err != nil {
		return nil, fmt.Errorf("vna: send: %w", err)
	}
	buf := make([]byte, clientBufSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("vna: receive: %w", err)
	}
	return buf[:n], nil
}

// StartAcquisition sends run-PL 1 and fails unless the server acknowledges.
func (c *Client) StartAcquisition() error {
	resp, err := c.sendReceive("r1")
	if err != nil {
		return err
	}
	if len(resp) == 0 || resp[0] != RespOK {
		return fmt.Errorf("%w: start acquisition rejected", ErrProtocol)
	}
	return nil
}

// StopAcquisition sends run-PL 0. The response is not checked, matching
// the reference client's behavior: a stop should never be blocked by the
// server's own bookkeeping.
func (c *Client) StopAcquisition() error {
	_, err := c.sendReceive("r0")
	return err
}

// RequestData requests one data packet and returns its voltages, a
// multiple of 4 in length (one point per 4 entries).
func (c *Client) RequestData() ([]float64, error) {
	resp, err := c.sendReceive("d")
	if err != nil {
		return nil, err
	}
	if len(resp)%32 != 0 {
		return nil, fmt.Errorf("%w: data response length %d not a multiple of 32", ErrProtocol, len(resp))
	}
	n := len(resp) / 8
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64frombits(nativeEndian.Uint64(resp[i*8 : i*8+8]))
	}
	return out, nil
}

// QueueSize requests the server's current queue depth.
func (c *Client) QueueSize() (uint16, error) {
	resp, err := c.sendReceive("q")
	if err != nil {
		return 0, err
	}
	if len(resp) != 2 {
		return 0, fmt.Errorf("%w: queue-size response length %d, want 2", ErrProtocol, len(resp))
	}
	return binary.BigEndian.Uint16(resp), nil
}

// CPUTemp requests the server's CPU temperature.
func (c *Client) CPUTemp() (float64, error) {
	resp, err := c.sendReceive("T")
	if err != nil {
		return 0, err
	}
	if len(resp) != 8 {
		return 0, fmt.Errorf("%w: temperature response length %d, want 8", ErrProtocol, len(resp))
	}
	return float64frombits(nativeEndian.Uint64(resp)), nil
}

// StopServer sends the stop-server command. The server closes the
// connection immediately after; the caller should not send anything else.
func (c *Client) StopServer() error {
	_, err := c.sendReceive("!")
	return err
}

// secondsToMicros truncates (never rounds) seconds to an integer
// microsecond count, matching the reference implementation's wire
// encoding for timing fields.
func secondsToMicros(seconds float64) int64 {
	return int64(seconds * 1e6)
}

// SendTPP sends the time-per-point configuration, in seconds.
func (c *Client) SendTPP(seconds float64) error {
	return c.sendConfig(CmdTPP, secondsToMicros(seconds))
}

// SendDeadTime sends the dead-time configuration, in seconds.
func (c *Client) SendDeadTime(seconds float64) error {
	return c.sendConfig(CmdDeadTime, secondsToMicros(seconds))
}

// SendTriggerLength sends the trigger pulse length, in seconds.
func (c *Client) SendTriggerLength(seconds float64) error {
	return c.sendConfig(CmdTriggerLength, secondsToMicros(seconds))
}

// SendTriggerConfig packs the trigger flags (active-low polarity,
// fire-on-sweep-start, fire-on-each-point) into a 4-bit nibble and sends
// it for trigger 0 or 1.
func (c *Client) SendTriggerConfig(trigNr int, positive, sweep, step bool) error {
	var flags int64
	if !positive {
		flags |= 1 << 0
	}
	if sweep {
		flags |= 1 << 1
	}
	if step {
		flags |= 1 << 2
	}
	switch trigNr {
	case 0:
		return c.sendConfig(CmdTrigger0Config, flags)
	case 1:
		return c.sendConfig(CmdTrigger1Config, flags)
	default:
		return fmt.Errorf("%w: trigger number must be 0 or 1, got %d", ErrConfig, trigNr)
	}
}

// SendPointsPerTransfer sends the PL's points-per-transfer field.
func (c *Client) SendPointsPerTransfer(n int) error {
	return c.sendConfig(CmdPointsPerXfer, int64(n))
}

// SendIFMultiplier sends the IF multiplier field.
func (c *Client) SendIFMultiplier(v int64) error {
	return c.sendConfig(CmdIFMult, v)
}

// RunPL sends the run-PL enable bit.
func (c *Client) RunPL(enabled bool) error {
	v := int64(0)
	if enabled {
		v = 1
	}
	resp, err := c.sendReceive("r" + strconv.FormatInt(v, 10))
	if err != nil {
		return err
	}
	if len(resp) == 0 || resp[0] != RespOK {
		return fmt.Errorf("%w: run-PL %d rejected", ErrProtocol, v)
	}
	return nil
}

func (c *Client) sendConfig(cmd byte, v int64) error {
	resp, err := c.sendReceive(string(cmd) + strconv.FormatInt(v, 10))
	if err != nil {
		return err
	}
	if len(resp) == 0 || resp[0] != RespOK {
		return fmt.Errorf("%w: command %q rejected", ErrProtocol, string(cmd))
	}
	return nil
}
