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
// vnaserver runs the SoC-resident acquisition server: it serves a single
// client connection, driving the PL over MMIO and DMA, and exits when that
// client disconnects or stops the server.

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/steelelab-vna/slvna"
)

func main() {
	listenAddr := pflag.StringP("listen", "l", ":2024", "address to listen on")
	devPath := pflag.StringP("device", "d", "/dev/mem", "MMIO device file")
	pointsPerTransfer := pflag.IntP("points-per-transfer", "n", 64, "initial DMA points-per-transfer")
	mock := pflag.BoolP("mock", "M", false, "use an in-memory mock instead of real MMIO/DMA hardware")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	pflag.Parse()

	if *verbose {
		vna.LogSetLevel(vna.LOG_DEBUG)
	}

	var (
		bus     vna.RegisterBus
		ch      vna.Channel
		thermal vna.ThermalSensor
	)

	if *mock {
		vna.Log(vna.LOG_INFO, "mocking register bus and DMA channel")
		mbus := vna.NewMockRegisterBus()
		bus = mbus
		probe := vna.NewPLConfig(mbus)
		ch = vna.NewMockChannel(probe.Enabled)
		thermal = &vna.MockThermalSensor{CelsiusValue: 42.0}
	} else {
		openedBus, err := vna.OpenRegisterBus(*devPath)
		if err != nil {
			vna.Log(vna.LOG_ERR, "opening register bus: %v", err)
			os.Exit(1)
		}
		bus = openedBus
		vna.Log(vna.LOG_ERR, "real DMA channel wiring requires a platform-specific driver not provided here")
		os.Exit(1)
	}

	srv := vna.NewServer(bus, ch, thermal, *listenAddr, *pointsPerTransfer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vna.Log(vna.LOG_INFO, "listening on %s", *listenAddr)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, vna.ErrServerStopped) {
		vna.Log(vna.LOG_ERR, "server stopped: %v", err)
		os.Exit(1)
	}
}
