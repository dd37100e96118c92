package main

/* A session is one RTU client bound to one slave on one serial line. The
 * handler carries the serial settings and the slave id; they are all in place
 * before the link is opened, so the first frame on the wire already uses them.
 */

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
)

// link carries RTU frames for a session.
type link interface {
	modbus.Transporter
	Close() error
}

// linkOpener opens the link for a fully configured serial port and slave.
// A nil opener means the real serial port behind the handler.
type linkOpener func(cfg serial.Config, slave byte) (link, error)

// tracingLink logs frames the way the serial transporter does when it has a
// Logger, for links that bypass it.
type tracingLink struct {
	link
	logger *log.Logger
}

func (t *tracingLink) Send(aduRequest []byte) ([]byte, error) {
	t.logger.Printf("modbus: sending % x\n", aduRequest)
	aduResponse, err := t.link.Send(aduRequest)
	if err != nil {
		t.logger.Printf("modbus: %v\n", err)
		return aduResponse, err
	}
	t.logger.Printf("modbus: received % x\n", aduResponse)
	return aduResponse, nil
}

type session struct {
	handler *modbus.RTUClientHandler
	link    link
	client  modbus.Client
}

func openSession(bus rtuData, slave byte, open linkOpener, trace *log.Logger) (*session, error) {
	handler := modbus.NewRTUClientHandler(bus.Devicename)
	handler.BaudRate = bus.Baudrate
	handler.DataBits = 8
	handler.Parity = strings.ToUpper(bus.Parity)
	handler.StopBits = bus.Stopbits
	handler.SlaveId = slave
	handler.Timeout = bus.timeout()
	handler.Logger = trace

	s := &session{handler: handler}
	if open == nil {
		if err := handler.Connect(); err != nil {
			return nil, fmt.Errorf("unable to connect to %s: %w", bus.Devicename, err)
		}
		s.link = handler
	} else {
		l, err := open(handler.Config, slave)
		if err != nil {
			return nil, fmt.Errorf("unable to open link for %s: %w", bus.Devicename, err)
		}
		s.link = l
		if trace != nil {
			s.link = &tracingLink{link: l, logger: trace}
		}
	}
	s.client = modbus.NewClient2(handler, s.link)
	return s, nil
}

func (s *session) Close() error {
	return s.link.Close()
}

// readRegisters issues one read holding registers request.
func (s *session) readRegisters(start, count uint16) ([]uint16, error) {
	results, err := s.client.ReadHoldingRegisters(start, count)
	if err != nil {
		return nil, fmt.Errorf("ReadHoldingRegisters(%d, %d): %w", start, count, err)
	}
	return decodeRegisters(results, int(count))
}

// writeRegisters issues one write multiple registers request.
func (s *session) writeRegisters(start uint16, values []uint16) error {
	_, err := s.client.WriteMultipleRegisters(start, uint16(len(values)), encodeRegisters(values))
	if err != nil {
		return fmt.Errorf("WriteMultipleRegisters(%d, %v): %w", start, values, err)
	}
	return nil
}

func decodeRegisters(results []byte, count int) ([]uint16, error) {
	if len(results) != count*2 {
		return nil, fmt.Errorf("expected %d registers, got %d bytes", count, len(results))
	}
	values := make([]uint16, count)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(results[i*2 : i*2+2])
	}
	return values, nil
}

func encodeRegisters(values []uint16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.BigEndian.PutUint16(out[i*2:i*2+2], v)
	}
	return out
}

// runRead reads the configured block, prints it and hands it to the
// publisher. Any failure ends the run before anything is printed.
func runRead(s *session, rd readData, out io.Writer, pub *publisher) ([]uint16, error) {
	values, err := s.readRegisters(rd.Start, rd.Count)
	if err != nil {
		return nil, err
	}
	text, err := formatValues(rd.Format, values)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(out, text)
	pub.publish(rd.Start, values)
	return values, nil
}
