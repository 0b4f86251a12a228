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
// This file implements RegisterBus on top of mmap'd physical address
// windows (one per disjoint PL register region, dispatched by address),
// the on-chip analogue of this codebase family's PCIe-BAR mmap access
// pattern.

//go:build linux

package vna

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapRegisterBus maps a contiguous physical address range (typically
// /dev/mem on a SoC without a UIO driver bound to the PL's AXI-Lite window)
// and exposes word-sized loads/stores into it.
type mmapRegisterBus struct {
	f          *os.File
	mem        []byte
	physBase   uint32
	pageOffset uint32
}

// openWindow opens devPath (e.g. "/dev/mem") and maps a single page window
// covering [physBase, physBase+size).
func openWindow(devPath string, physBase uint32, size int) (*mmapRegisterBus, error) {
	f, err := os.OpenFile(devPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("vna: opening %s: %w", devPath, err)
	}

	pageSize := uint32(os.Getpagesize())
	aligned := physBase - (physBase % pageSize)
	pageOffset := physBase - aligned
	mapSize := int(pageOffset) + size
	if mapSize%int(pageSize) != 0 {
		mapSize += int(pageSize) - mapSize%int(pageSize)
	}

	mem, err := unix.Mmap(int(f.Fd()), int64(aligned), mapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("vna: mmap %s at 0x%x: %w", devPath, aligned, err)
	}

	return &mmapRegisterBus{f: f, mem: mem, physBase: aligned, pageOffset: pageOffset}, nil
}

// Close unmaps the register window and closes the backing file.
func (b *mmapRegisterBus) Close() error {
	if err := unix.Munmap(b.mem); err != nil {
		return err
	}
	return b.f.Close()
}

func (b *mmapRegisterBus) offset(addr uint32) uint32 {
	return b.pageOffset + (addr - b.physBase)
}

// contains reports whether addr falls inside this window's mapped range.
func (b *mmapRegisterBus) contains(addr uint32) bool {
	off := b.offset(addr)
	return int(off)+4 <= len(b.mem)
}

// ReadWord loads the 32-bit word at physical address addr.
func (b *mmapRegisterBus) ReadWord(addr uint32) (uint32, error) {
	off := b.offset(addr)
	if int(off)+4 > len(b.mem) {
		return 0, fmt.Errorf("vna: register address 0x%x out of mapped range", addr)
	}
	return binary.LittleEndian.Uint32(b.mem[off : off+4]), nil
}

// WriteWord stores the 32-bit word at physical address addr.
func (b *mmapRegisterBus) WriteWord(addr uint32, value uint32) error {
	off := b.offset(addr)
	if int(off)+4 > len(b.mem) {
		return fmt.Errorf("vna: register address 0x%x out of mapped range", addr)
	}
	binary.LittleEndian.PutUint32(b.mem[off:off+4], value)
	return nil
}

// Addresses of the PL's two disjoint AXI-Lite register windows. Each is
// small enough that a single page mapping covers both registers it holds.
const (
	trigGeneralWindowBase = 0x41200000
	trigGeneralWindowSize = 16
	deadTimeTPPWindowBase = 0x42000000
	deadTimeTPPWindowSize = 16
)

// multiWindowBus dispatches reads and writes across several disjoint mmap
// windows by physical address, so that a PLConfig sees one RegisterBus even
// though the PL's registers live in two separate AXI-Lite address ranges.
type multiWindowBus struct {
	windows []*mmapRegisterBus
}

// OpenRegisterBus opens devPath (e.g. "/dev/mem") and maps both of the PL's
// register windows.
func OpenRegisterBus(devPath string) (RegisterBus, error) {
	trigGeneral, err := openWindow(devPath, trigGeneralWindowBase, trigGeneralWindowSize)
	if err != nil {
		return nil, err
	}
	deadTimeTPP, err := openWindow(devPath, deadTimeTPPWindowBase, deadTimeTPPWindowSize)
	if err != nil {
		trigGeneral.Close()
		return nil, err
	}
	return &multiWindowBus{windows: []*mmapRegisterBus{trigGeneral, deadTimeTPP}}, nil
}

// Close unmaps every window.
func (b *multiWindowBus) Close() error {
	var first error
	for _, w := range b.windows {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (b *multiWindowBus) window(addr uint32) (*mmapRegisterBus, error) {
	for _, w := range b.windows {
		if w.contains(addr) {
			return w, nil
		}
	}
	return nil, fmt.Errorf("vna: register address 0x%x not in any mapped window", addr)
}

// ReadWord loads the 32-bit word at physical address addr from whichever
// window covers it.
func (b *multiWindowBus) ReadWord(addr uint32) (uint32, error) {
	w, err := b.window(addr)
	if err != nil {
		return 0, err
	}
	return w.ReadWord(addr)
}

// WriteWord stores the 32-bit word at physical address addr into whichever
// window covers it.
func (b *multiWindowBus) WriteWord(addr uint32, value uint32) error {
	w, err := b.window(addr)
	if err != nil {
		return err
	}
	return w.WriteWord(addr, value)
}
