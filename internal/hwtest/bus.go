// Package hwtest provides an in-memory I2C bus for tests. Each device address
// owns a flat byte-register file: a transfer whose write part is a single byte
// selects a register for the following read, longer writes store the payload
// starting at the selected register. Addresses given a word register with
// SetWord switch to big-endian 16-bit registers instead.
package hwtest

import (
	"encoding/binary"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
)

// Tx is one recorded bus transfer.
type Tx struct {
	Addr uint16
	W    []byte
	R    []byte
}

// Bus implements periph.io/x/conn/v3/i2c.Bus.
type Bus struct {
	mu   sync.Mutex
	regs  map[uint16]map[byte]byte
	words map[uint16]map[byte]uint16
	log   []Tx
	// fail holds errors returned by the next transfers, in order.
	fail []error
}

// NewBus returns an empty bus. Unset registers read as zero.
func NewBus() *Bus {
	return &Bus{regs: make(map[uint16]map[byte]byte), words: make(map[uint16]map[byte]uint16)}
}

func (b *Bus) String() string { return "hwtest" }

// Close implements i2c.BusCloser.
func (b *Bus) Close() error { return nil }

func (b *Bus) SetSpeed(physic.Frequency) error { return nil }

// Tx performs a register transfer against the in-memory register file.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.fail) > 0 {
		err := b.fail[0]
		b.fail = b.fail[1:]
		if err != nil {
			return err
		}
	}
	if len(w) == 0 {
		return fmt.Errorf("hwtest: transfer without register address")
	}
	reg := w[0]
	if words, ok := b.words[addr]; ok {
		if len(w) == 3 {
			words[reg] = binary.BigEndian.Uint16(w[1:])
		}
		if len(r) == 2 {
			binary.BigEndian.PutUint16(r, words[reg])
		}
	} else {
		dev := b.regs[addr]
		if dev == nil {
			dev = make(map[byte]byte)
			b.regs[addr] = dev
		}
		for i, v := range w[1:] {
			dev[reg+byte(i)] = v
		}
		for i := range r {
			r[i] = dev[reg+byte(i)]
		}
	}
	b.log = append(b.log, Tx{Addr: addr, W: append([]byte(nil), w...), R: append([]byte(nil), r...)})
	return nil
}

// Set stores a register value, e.g. to simulate an input level.
func (b *Bus) Set(addr uint16, reg, v byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dev := b.regs[addr]
	if dev == nil {
		dev = make(map[byte]byte)
		b.regs[addr] = dev
	}
	dev[reg] = v
}

// SetWord stores a 16-bit register value and switches addr to word
// registers.
func (b *Bus) SetWord(addr uint16, reg byte, v uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	words := b.words[addr]
	if words == nil {
		words = make(map[byte]uint16)
		b.words[addr] = words
	}
	words[reg] = v
}

// Word returns a 16-bit register value.
func (b *Bus) Word(addr uint16, reg byte) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.words[addr][reg]
}

// Get returns a register value.
func (b *Bus) Get(addr uint16, reg byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[addr][reg]
}

// FailNext makes the next len(errs) transfers return the given errors.
// A nil entry lets that transfer through.
func (b *Bus) FailNext(errs ...error) {
	b.mu.Lock()
	b.fail = append(b.fail, errs...)
	b.mu.Unlock()
}

// Writes returns the register writes (transfers with a payload) sent to addr.
func (b *Bus) Writes(addr uint16) []Tx {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Tx
	for _, tx := range b.log {
		if tx.Addr == addr && len(tx.W) > 1 {
			out = append(out, tx)
		}
	}
	return out
}

// Reset clears the transfer log but keeps register contents.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.log = nil
	b.mu.Unlock()
}
