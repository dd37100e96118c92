package main

import (
	"encoding/binary"
	"sync"
)

type modbusError struct {
	code byte
	name string
}

func (e modbusError) Error() string {
	return e.name
}

var (
	modbusSuccess   = modbusError{}
	illegalFunction = modbusError{code: 1, name: "illegal function"}
	illegalAddress  = modbusError{code: 2, name: "illegal data address"}
	illegalValue    = modbusError{code: 3, name: "illegal data value"}
)

const (
	maxReadCount  = 125
	maxWriteCount = 123
)

// writePolicy decides whether the device accepts a block write. Returning
// false answers the request with an illegal data value exception.
type writePolicy func(start uint16, values []uint16) bool

func acceptAll(uint16, []uint16) bool { return true }

// maxValuePolicy rejects any write carrying a value above limit. A zero limit
// accepts everything.
func maxValuePolicy(limit uint16) writePolicy {
	if limit == 0 {
		return acceptAll
	}
	return func(_ uint16, values []uint16) bool {
		for _, v := range values {
			if v > limit {
				return false
			}
		}
		return true
	}
}

type registerBank struct {
	data   []uint16
	rw     sync.RWMutex
	accept writePolicy
}

func newRegisterBank(size int, accept writePolicy) *registerBank {
	if accept == nil {
		accept = acceptAll
	}
	return &registerBank{data: make([]uint16, size), accept: accept}
}

func (rb *registerBank) Len() int {
	return len(rb.data)
}

func (rb *registerBank) inRange(regStart, numReg int) bool {
	return regStart >= 0 && numReg > 0 && regStart+numReg <= len(rb.data)
}

// Read returns the registers as a read response payload: the byte count
// followed by the big endian register values.
func (rb *registerBank) Read(regStart, numReg int) ([]byte, modbusError) {
	if numReg < 1 || numReg > maxReadCount {
		return nil, illegalValue
	}
	if !rb.inRange(regStart, numReg) {
		return nil, illegalAddress
	}
	bytes := make([]byte, numReg*2+1)
	bytes[0] = byte(numReg * 2)

	idx := 1
	rb.rw.RLock()
	for n := regStart; n < regStart+numReg; n++ {
		binary.BigEndian.PutUint16(bytes[idx:idx+2], rb.data[n])
		idx += 2
	}
	rb.rw.RUnlock()
	return bytes, modbusSuccess
}

// Write stores big endian register values starting at regStart.
func (rb *registerBank) Write(regStart int, bytes []byte) modbusError {
	numReg := len(bytes) / 2
	if numReg < 1 || numReg > maxWriteCount || len(bytes)%2 != 0 {
		return illegalValue
	}
	if !rb.inRange(regStart, numReg) {
		return illegalAddress
	}
	values := make([]uint16, numReg)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(bytes[i*2 : i*2+2])
	}
	if !rb.accept(uint16(regStart), values) {
		return illegalValue
	}

	rb.rw.Lock()
	copy(rb.data[regStart:], values)
	rb.rw.Unlock()
	return modbusSuccess
}

// Values is a copy of the bank contents, for inspection.
func (rb *registerBank) Values(regStart, numReg int) []uint16 {
	if !rb.inRange(regStart, numReg) {
		return nil
	}
	out := make([]uint16, numReg)
	rb.rw.RLock()
	copy(out, rb.data[regStart:regStart+numReg])
	rb.rw.RUnlock()
	return out
}
