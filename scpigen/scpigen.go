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
// Package scpigen drives a SCPI-over-LAN signal generator (modeled on
// the AnaPico APUASYN20 family) by exchanging plain-ASCII command
// lines over a TCP socket.

package scpigen

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/steelelab-vna/slvna"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 2 * time.Second
	// deadTime is the fixed switching dead time of the APUASYN20 family,
	// during which acquired data is inconsistent.
	deadTime = 500e-6
)

// Generator drives one SCPI-over-LAN instrument.
type Generator struct {
	addr string
	name string

	conn   net.Conn
	rw     *bufio.ReadWriter
	mode   string
}

// New returns a generator bound to addr ("host:port"), unconnected.
func New(addr string) *Generator {
	return &Generator{addr: addr, name: fmt.Sprintf("APUASYN20 @ %s, not yet connected", addr)}
}

func (g *Generator) Name() string { return g.name }

// Connect opens the TCP session and resets/identifies the instrument,
// matching the reference driver's start() sequence.
func (g *Generator) Connect() error {
	conn, err := net.DialTimeout("tcp", g.addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("scpigen: connecting to %s: %w", g.addr, err)
	}
	g.conn = conn
	g.rw = bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	if err := g.write("*RST"); err != nil {
		return err
	}
	if err := g.write("*CLS"); err != nil {
		return err
	}

	idn, err := g.Query("*IDN?")
	if err != nil {
		return err
	}
	g.name = strings.TrimSpace(idn)

	return g.ConfigureTrigger(vna.TriggerSpec{First: true, Remaining: true})
}

// Disconnect stops the RF output and closes the session. It is safe to
// call even if Connect never succeeded.
func (g *Generator) Disconnect() error {
	if g.conn == nil {
		return nil
	}
	_ = g.RFOff()
	err := g.conn.Close()
	g.conn, g.rw = nil, nil
	return err
}

func (g *Generator) Capabilities() (vna.GeneratorCapabilities, error) {
	return vna.GeneratorCapabilities{
		ContinuousWave: true,
		FSweep:         true,
		PSweep:         false,
		DeadTime:       deadTime,
		Trigger: vna.TriggerSpec{
			Length:    10e-6,
			Polarity:  true,
			First:     true,
			Remaining: true,
		},
	}, nil
}

func (g *Generator) ContinuousWave(freqHz, powerDBm float64) error {
	if err := g.write(fmt.Sprintf("POW:AMPL %gDBM", powerDBm)); err != nil {
		return err
	}
	if err := g.write("FREQ:MODE FIX"); err != nil {
		return err
	}
	if err := g.write(fmt.Sprintf("SOUR:FREQ %gHz", freqHz)); err != nil {
		return err
	}
	g.mode = "continuouswave"
	return nil
}

// FSweep configures a hardware frequency sweep without starting it,
// subtracting the fixed dead time from the requested per-point timestep
// to arrive at the instrument's dwell time.
func (g *Generator) FSweep(startHz, stopHz, powerDBm float64, points int, timestep float64) error {
	if stopHz < startHz {
		startHz, stopHz = stopHz, startHz
		if err := g.write("SWE:DIR DOWN"); err != nil {
			return err
		}
	}
	if err := g.write(fmt.Sprintf("POW:AMPL %gDBM", powerDBm)); err != nil {
		return err
	}
	if err := g.write(fmt.Sprintf("FREQ:STAR %gHz", startHz)); err != nil {
		return err
	}
	if err := g.write(fmt.Sprintf("FREQ:STOP %gHz", stopHz)); err != nil {
		return err
	}
	if err := g.write(fmt.Sprintf("SWE:POIN %d", points)); err != nil {
		return err
	}
	dwell := timestep - deadTime
	if err := g.write(fmt.Sprintf("SWE:DWEL %gs", dwell)); err != nil {
		return err
	}
	g.mode = "fsweep"
	return nil
}

func (g *Generator) PSweep(freqHz, startDBm, stopDBm float64, points int, timestep float64) error {
	return fmt.Errorf("scpigen: %s does not support power sweeps", g.name)
}

func (g *Generator) ConfigureTrigger(spec vna.TriggerSpec) error {
	if err := g.write("TRIG:SOUR EXT"); err != nil {
		return err
	}
	triggerType := "NORM"
	if spec.Remaining {
		triggerType = "POINT"
	}
	if err := g.write("TRIG:TYPE " + triggerType); err != nil {
		return err
	}
	return g.write("INIT:CONT ON")
}

func (g *Generator) ConfigureRefOsc(external bool) error {
	source := "INT"
	if external {
		source = "EXT"
	}
	return g.write("ROSC:SOUR " + source)
}

// RFOn enables the RF output. The sweep mode is armed only after the
// output is enabled, matching the instrument's required command order.
func (g *Generator) RFOn() error {
	if locked, err := g.isLocked(); err == nil && !locked {
		vna.Log(vna.LOG_WARN, "%s: enabling RF output while not locked to reference oscillator", g.name)
	}

	if err := g.write("OUTP 1"); err != nil {
		return err
	}
	if g.mode == "fsweep" {
		return g.write("FREQ:MODE SWE")
	}
	return nil
}

func (g *Generator) RFOff() error {
	return g.write("OUTP OFF")
}

func (g *Generator) Query(param string) (string, error) {
	if g.conn == nil {
		return "", fmt.Errorf("scpigen: %s: not connected", g.name)
	}
	if err := g.conn.SetDeadline(time.Now().Add(writeTimeout)); err != nil {
		return "", err
	}
	if _, err := g.rw.WriteString(param + "\n"); err != nil {
		return "", fmt.Errorf("scpigen: query %q: %w", param, err)
	}
	if err := g.rw.Flush(); err != nil {
		return "", fmt.Errorf("scpigen: query %q: %w", param, err)
	}
	line, err := g.rw.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("scpigen: query %q: %w", param, err)
	}
	return strings.TrimSpace(line), nil
}

// NetworkPingRTT approximates a ping round-trip time by timing a fresh
// TCP connect to the instrument's address, since no ICMP echo is
// available without raw-socket privileges.
func (g *Generator) NetworkPingRTT() (string, float64, error) {
	host, _, err := net.SplitHostPort(g.addr)
	if err != nil {
		host = g.addr
	}
	start := time.Now()
	conn, err := net.DialTimeout("tcp", g.addr, dialTimeout)
	if err != nil {
		return host, 0, fmt.Errorf("scpigen: pinging %s: %w", g.addr, err)
	}
	rtt := time.Since(start).Seconds()
	_ = conn.Close()
	return host, rtt, nil
}

func (g *Generator) write(cmd string) error {
	if g.conn == nil {
		return fmt.Errorf("scpigen: %s: not connected", g.name)
	}
	if err := g.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := g.rw.WriteString(cmd + "\n"); err != nil {
		return fmt.Errorf("scpigen: write %q: %w", cmd, err)
	}
	return g.rw.Flush()
}

// isLocked reports whether the generator is locked to its reference
// oscillator, queried the way the reference driver recommends calling
// it before enabling RF output.
func (g *Generator) isLocked() (bool, error) {
	resp, err := g.Query("ROSC:LOCK?")
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return false, fmt.Errorf("scpigen: parsing lock status %q: %w", resp, err)
	}
	return v == 1, nil
}
