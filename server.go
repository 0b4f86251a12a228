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
// This file implements the single-client TCP server: the accept loop, the
// first-byte command dispatcher, and the start/pause/stop DMA lifecycle.

package vna

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// ThermalSensor reports the SoC's CPU temperature in degrees Celsius.
type ThermalSensor interface {
	ReadCelsius() (float64, error)
}

// queueGetTimeout is the interval at which get_data polls an empty queue
// while it has not yet collected any point.
const queueGetTimeout = 50 * time.Millisecond

// Server is the single-client TCP data server. It owns the PL register
// state, the DMA buffer, the bounded point queue, and the producer
// goroutine that feeds it.
type Server struct {
	pl      *PLConfig
	dma     *DMABuffer
	queue   *PointQueue
	thermal ThermalSensor

	listenAddr string

	producerWG sync.WaitGroup
}

// NewServer constructs a Server around the given register bus, DMA
// channel and thermal sensor, listening on listenAddr (host:port, e.g.
// ":2024").
func NewServer(bus RegisterBus, ch Channel, thermal ThermalSensor, listenAddr string, pointsPerTransfer int) *Server {
	pl := NewPLConfig(bus)
	if err := pl.Write(CmdPointsPerXfer, float64(pointsPerTransfer)); err != nil {
		Log(LOG_WARN, "setting initial points-per-transfer: %v", err)
	}
	dma := NewDMABuffer(ch, pointsPerTransfer)
	return &Server{
		pl:         pl,
		dma:        dma,
		queue:      NewPointQueue(),
		thermal:    thermal,
		listenAddr: listenAddr,
	}
}

// Serve listens on the server's configured address, accepts exactly one
// client connection, serves it until disconnect or stop, and returns. A
// graceful stop is reported as ErrServerStopped, not as a failure.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("vna: listen: %w", err)
	}
	defer ln.Close()

	s.producerWG.Add(1)
	go func() {
		defer s.producerWG.Done()
		s.queue.KeepFetching(func() ([]float64, error) {
			enabled, err := s.pl.Enabled()
			if err != nil {
				return nil, err
			}
			return s.dma.RequestBlock(enabled)
		})
	}()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return s.stop(nil)
		default:
			return fmt.Errorf("vna: accept: %w", err)
		}
	}

	Log(LOG_INFO, "client connected from %s", conn.RemoteAddr())
	serveErr := s.serveClient(conn)
	conn.Close()

	if serveErr == errClientDisconnected {
		s.pauseDMA()
		return nil
	}
	return serveErr
}

// errClientDisconnected is an internal sentinel distinguishing "the client
// went away" from a genuine stop request.
var errClientDisconnected = fmt.Errorf("vna: client disconnected")

func (s *Server) serveClient(conn net.Conn) error {
	r := bufio.NewReader(conn)
	for {
		line, err := readCommand(r)
		if err != nil {
			return errClientDisconnected
		}

		resp, stop, err := s.dispatch(line)
		if err != nil {
			Log(LOG_WARN, "command %q failed: %v", line, err)
		}
		if _, werr := conn.Write(resp); werr != nil {
			return errClientDisconnected
		}
		if stop {
			return s.stop(conn)
		}
	}
}

// readCommand reads a single command token and its (possibly empty)
// integer argument from the wire. Commands are not newline-delimited on
// the wire; each one is a short fixed-shape ASCII token, so a bounded read
// of whatever is currently available is sufficient.
func readCommand(r *bufio.Reader) ([]byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	buf := []byte{b}
	for r.Buffered() > 0 {
		nb, err := r.ReadByte()
		if err != nil {
			break
		}
		buf = append(buf, nb)
	}
	return buf, nil
}

// dispatch implements the first-byte command table, returning the bytes to
// write back to the client and whether the connection/server should stop
// after writing them.
func (s *Server) dispatch(cmd []byte) (resp []byte, stop bool, err error) {
	if len(cmd) == 0 {
		return []byte{RespErr}, false, fmt.Errorf("%w: empty command", ErrProtocol)
	}

	switch cmd[0] {
	case CmdData:
		data, derr := s.getData()
		if derr != nil {
			return []byte{RespErr}, false, derr
		}
		return floatsToBytes(data), false, nil

	case CmdQueueSize:
		n := s.queue.Len()
		out := make([]byte, 2)
		binary.BigEndian.PutUint16(out, uint16(n))
		return out, false, nil

	case CmdCPUTemp:
		t, terr := s.thermal.ReadCelsius()
		if terr != nil {
			return []byte{RespErr}, false, terr
		}
		return floatsToBytes([]float64{t}), false, nil

	case CmdStopServer:
		return []byte{RespOK}, true, nil

	case CmdRunPL:
		arg, aerr := parseArg(cmd[1:])
		if aerr != nil {
			return []byte{RespErr}, false, aerr
		}
		if arg == 1 {
			if serr := s.startDMA(); serr != nil {
				return []byte{RespErr}, false, serr
			}
		} else if arg == 0 {
			s.pauseDMA()
		} else {
			return []byte{RespErr}, false, fmt.Errorf("%w: run-PL argument must be 0 or 1, got %d", ErrProtocol, arg)
		}
		return []byte{RespOK}, false, nil

	case CmdDeadTime, CmdTPP, CmdTriggerLength, CmdTrigger0Config, CmdTrigger1Config, CmdPointsPerXfer, CmdIFMult:
		arg, aerr := parseArg(cmd[1:])
		if aerr != nil {
			return []byte{RespErr}, false, aerr
		}
		if werr := s.writeConfig(cmd[0], float64(arg)); werr != nil {
			return []byte{RespErr}, false, werr
		}
		return []byte{RespOK}, false, nil

	default:
		return []byte{RespErr}, false, fmt.Errorf("%w: unknown command %q", ErrProtocol, cmd[0])
	}
}

func parseArg(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: missing command argument", ErrProtocol)
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return v, nil
}

// writeConfig rejects a write while the PL is enabled, matching the
// requirement that a SweepConfig (and, here, the PL's mirrored config) is
// only mutated while not running.
func (s *Server) writeConfig(cmd byte, v float64) error {
	enabled, err := s.pl.Enabled()
	if err != nil {
		return err
	}
	if enabled {
		return fmt.Errorf("%w: cannot change configuration while PL is enabled", ErrPL)
	}
	if cmd == CmdPointsPerXfer {
		return s.dma.SetPointsPerTransfer(int(v), s.pl)
	}
	return s.pl.Write(cmd, v)
}

// getData drains the queue into a packet of up to POINTS_PER_PACKET points.
// Once at least one point has been collected it returns as soon as the
// queue runs empty, so the packet may be short. While nothing has been
// collected it polls every queueGetTimeout: it fails (the caller replies
// '?') once the queue is empty and the producer reports paused, and keeps
// waiting for as long as the producer is fetching without delivering.
func (s *Server) getData() ([]float64, error) {
	enabled, err := s.pl.Enabled()
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, fmt.Errorf("%w: PL not enabled", ErrPL)
	}

	var points []Point
	for len(points) < POINTS_PER_PACKET {
		got := s.queue.Drain(POINTS_PER_PACKET - len(points))
		if len(got) > 0 {
			points = append(points, got...)
			continue
		}

		if len(points) > 0 {
			break
		}

		if s.queue.Paused() {
			return nil, fmt.Errorf("%w: queue paused and empty", ErrPL)
		}
		time.Sleep(queueGetTimeout)
	}

	out := make([]float64, 0, len(points)*4)
	for _, p := range points {
		out = append(out, p.IDut, p.QDut, p.IRef, p.QRef)
	}
	return out, nil
}

// startDMA implements run-PL 1: verify-config, pause (so no stale sample
// from a prior sweep survives), flush, enable, resume. The order is
// critical: enabling the PL before flushing would let a stale sample land
// in the fresh sweep.
func (s *Server) startDMA() error {
	if err := s.pl.VerifyConfig(); err != nil {
		return err
	}
	s.pauseDMA()
	s.queue.Flush()
	if err := s.pl.SetEnabled(true); err != nil {
		return err
	}
	s.queue.Resume()
	return nil
}

// pauseDMA implements run-PL 0: clear fetch, wait for the producer to
// report paused, then disable the PL.
func (s *Server) pauseDMA() {
	s.queue.Pause()
	if err := s.pl.SetEnabled(false); err != nil {
		Log(LOG_WARN, "failed to disable PL during pause: %v", err)
	}
	s.dma.NotifyDisabled()
}

// stop performs the graceful shutdown sequence: signal the producer to
// exit, pause/disable the PL, join the producer, and return the stop
// sentinel so callers (and the accept loop) can distinguish this from a
// real failure.
func (s *Server) stop(conn net.Conn) error {
	s.queue.Stop()
	s.pauseDMA()
	s.producerWG.Wait()
	if conn != nil {
		conn.Close()
	}
	return ErrServerStopped
}

// floatsToBytes packs a slice of float64s into their IEEE-754 bit pattern,
// in the host's native byte order, matching the behavior of the
// originating implementation's float-packing helper exactly.
func floatsToBytes(values []float64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		nativeEndian.PutUint64(out[i*8:i*8+8], float64bits(v))
	}
	return out
}
