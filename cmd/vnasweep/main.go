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
// vnasweep drives a frequency sweep from the client side: configures the
// RF/LO (and optionally clock) generators, talks to the SoC server, and
// writes the resulting dataset as CSV.

package main

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/steelelab-vna/slvna"
	"github.com/steelelab-vna/slvna/mockgen"
	"github.com/steelelab-vna/slvna/scpigen"
)

func main() {
	addrSoc := pflag.StringP("soc", "s", "", "SoC server address (host:port)")
	addrRF := pflag.String("rf", "", "RF generator address (host:port); empty uses a mock")
	addrLO := pflag.String("lo", "", "LO generator address (host:port); empty uses a mock")
	startFreq := pflag.Float64P("start-freq", "a", 1e9, "sweep start frequency, Hz")
	stopFreq := pflag.Float64P("stop-freq", "b", 2e9, "sweep stop frequency, Hz")
	power := pflag.Float64P("power", "p", 0, "RF output power, dBm")
	points := pflag.IntP("points", "n", 201, "number of sweep points")
	timestep := pflag.Float64P("timestep", "t", 1e-3, "time per point, seconds")
	out := pflag.StringP("out", "o", "sweep.csv", "output CSV path")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	pflag.Parse()

	if *verbose {
		vna.LogSetLevel(vna.LOG_DEBUG)
	}
	if *addrSoc == "" {
		vna.Log(vna.LOG_ERR, "-soc is required")
		os.Exit(1)
	}

	genRF := newGenerator("rf", *addrRF)
	genLO := newGenerator("lo", *addrLO)

	cfg := vna.NewSweepConfig(*addrSoc, genRF, genLO, nil)
	if err := cfg.SetFreqSweep(vna.FreqSweepParams{
		StartFreq: *startFreq, StopFreq: *stopFreq, Power: *power,
		Timestep: *timestep, Points: *points,
	}); err != nil {
		vna.Log(vna.LOG_ERR, "configuring sweep: %v", err)
		os.Exit(1)
	}

	result, err := vna.NewSweep(cfg).Run()
	if err != nil {
		vna.Log(vna.LOG_ERR, "sweep failed: %v", err)
		os.Exit(1)
	}

	if err := writeCSV(*out, result); err != nil {
		vna.Log(vna.LOG_ERR, "writing %s: %v", *out, err)
		os.Exit(1)
	}
	vna.Log(vna.LOG_INFO, "wrote %d points to %s", len(result.Frequency), *out)
}

func newGenerator(name, addr string) vna.Generator {
	if addr == "" {
		vna.Log(vna.LOG_WARN, "no address given for %s generator, using a mock", name)
		return mockgen.New(name)
	}
	return scpigen.New(addr)
}

func writeCSV(path string, r vna.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"frequency_hz", "s21_mag_db", "s21_phase_unwrapped_rad"}); err != nil {
		return err
	}
	for i := range r.Frequency {
		row := []string{
			strconv.FormatFloat(r.Frequency[i], 'g', -1, 64),
			strconv.FormatFloat(r.S21MagDB[i], 'g', -1, 64),
			strconv.FormatFloat(r.S21PhaseUnwrapped[i], 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
