package main

/* A simulated slave: one register bank behind one slave id. It answers the
 * same frames a bench device would, either in process (as the transport of a
 * client session) or from the serial server loop.
 */

import (
	"encoding/binary"
	"sync"

	"github.com/goburrow/serial"
	"github.com/tbrandon/mbserver"
)

type handledRequest struct {
	slave    byte
	function byte
	data     []byte
}

type simDevice struct {
	id   byte
	bank *registerBank

	mu          sync.Mutex
	opened      []serial.Config
	openedSlave []byte
	openedAt    []int
	requests    []handledRequest
}

func newSimDevice(id byte, bank *registerBank) *simDevice {
	return &simDevice{id: id, bank: bank}
}

// open is a linkOpener handing out the device itself as the session link.
func (d *simDevice) open(cfg serial.Config, slave byte) (link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, cfg)
	d.openedSlave = append(d.openedSlave, slave)
	d.openedAt = append(d.openedAt, len(d.requests))
	return d, nil
}

func (d *simDevice) Close() error {
	return nil
}

// Send answers one RTU request frame. Frames for other slaves go unanswered,
// which the client sees as a timeout.
func (d *simDevice) Send(aduRequest []byte) ([]byte, error) {
	frame, err := mbserver.NewRTUFrame(aduRequest)
	if err != nil {
		return nil, err
	}
	out := d.respond(frame)
	if out == nil {
		return nil, serial.ErrTimeout
	}
	return out, nil
}

func (d *simDevice) respond(frame *mbserver.RTUFrame) []byte {
	if frame.Address != d.id {
		return nil
	}
	d.record(frame)

	var (
		payload []byte
		err     = modbusSuccess
		data    = frame.Data
	)
	switch frame.Function {
	case 3, 4:
		if len(data) < 4 {
			err = illegalValue
			break
		}
		register := int(binary.BigEndian.Uint16(data[0:2]))
		numRegs := int(binary.BigEndian.Uint16(data[2:4]))
		payload, err = d.bank.Read(register, numRegs)
	case 6:
		if len(data) < 4 {
			err = illegalValue
			break
		}
		register := int(binary.BigEndian.Uint16(data[0:2]))
		err = d.bank.Write(register, data[2:4])
		payload = data[0:4]
	case 16:
		if len(data) < 5 {
			err = illegalValue
			break
		}
		register := int(binary.BigEndian.Uint16(data[0:2]))
		numRegs := int(binary.BigEndian.Uint16(data[2:4]))
		count := int(data[4])
		if count != numRegs*2 || len(data) < 5+count {
			err = illegalValue
			break
		}
		err = d.bank.Write(register, data[5:5+count])
		payload = data[0:4]
	default:
		err = illegalFunction
	}

	var out []byte
	if err == modbusSuccess {
		out = []byte{frame.Address, frame.Function}
		out = append(out, payload...)
	} else {
		out = []byte{frame.Address, frame.Function | 0x80, err.code}
	}
	return appendCRC(out)
}

func (d *simDevice) record(frame *mbserver.RTUFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, handledRequest{
		slave:    frame.Address,
		function: frame.Function,
		data:     append([]byte(nil), frame.Data...),
	})
}

func (d *simDevice) requestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}
