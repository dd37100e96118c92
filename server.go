package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/goburrow/serial"
	"github.com/tbrandon/mbserver"
)

type request struct {
	conn  io.Writer
	frame *mbserver.RTUFrame
}

const rtuMinSz = 8

// startServer answers requests for dev on the configured serial port until quit
// is closed or the port reports EOF. The listen loop signals done on the way out.
func startServer(cfg serverData, dev *simDevice, quit <-chan struct{}, done chan<- bool) (io.Closer, error) {
	rtuConfig := serial.Config{
		Address:  cfg.Bus.Devicename,
		BaudRate: cfg.Bus.Baudrate,
		DataBits: 8,
		StopBits: cfg.Bus.Stopbits,
		Parity:   strings.ToUpper(cfg.Bus.Parity),
		Timeout:  cfg.Bus.timeout(),
	}

	port, err := serial.Open(&rtuConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", rtuConfig.Address, err)
	}

	requests := make(chan *request)
	go processRequests(dev, requests)
	go acceptSerialRequests(port, requests, quit, done)
	log.Printf("Server: Started listening on %s as slave %d with %d registers",
		cfg.Bus.Devicename, dev.id, dev.bank.Len())
	return port, nil
}

// rtuFrameLength is the size of the request frame starting buf, or 0 when
// more bytes are needed to tell.
func rtuFrameLength(buf []byte) int {
	if len(buf) < 2 {
		return 0
	}
	switch buf[1] {
	case 15, 16:
		// slave, function, address, quantity, byte count, data, crc
		if len(buf) < 7 {
			return 0
		}
		return 9 + int(buf[6])
	default:
		return rtuMinSz
	}
}

type frameBuffer struct {
	buf bytes.Buffer
}

// next cuts the next complete frame off the buffer.
func (fb *frameBuffer) next() []byte {
	n := rtuFrameLength(fb.buf.Bytes())
	if n == 0 || fb.buf.Len() < n {
		return nil
	}
	return append([]byte(nil), fb.buf.Next(n)...)
}

func acceptSerialRequests(port io.ReadWriter, requests chan<- *request, quit <-chan struct{}, done chan<- bool) {
	defer func() {
		close(requests)
		done <- true
	}()

	fb := frameBuffer{}
	tmpBuf := make([]byte, 16)

	for {
		select {
		case <-quit:
			log.Printf("Server: Quit requested, exiting listen loop.")
			return
		default:
		}

		b, err := port.Read(tmpBuf)
		if err != nil {
			if err == serial.ErrTimeout {
				continue
			}
			if portGone(err) {
				log.Printf("Server: %v, exiting listen loop.", err)
				return
			}
			log.Printf("Server: %v", err)
			continue
		}
		if b == 0 {
			continue
		}
		fb.buf.Write(tmpBuf[:b])

		for raw := fb.next(); raw != nil; raw = fb.next() {
			frame, err := mbserver.NewRTUFrame(raw)
			if err != nil {
				log.Printf("Server: bad serial frame: %v", err)
				fb.buf.Reset()
				break
			}
			requests <- &request{port, frame}
		}
	}
}

// portGone reports read errors after which the port will never deliver again.
func portGone(err error) bool {
	return err == io.EOF || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}

func processRequests(dev *simDevice, requests <-chan *request) {
	for req := range requests {
		out := dev.respond(req.frame)
		if out == nil {
			continue
		}
		if _, err := req.conn.Write(out); err != nil {
			log.Printf("Server: write failed: %v", err)
		}
	}
}
