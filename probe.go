package main

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/goburrow/modbus"
)

var errValueRange = errors.New("value does not fit a 16 bit register")

type failureKind string

const (
	valueFailure failureKind = "value"
	ioFailure    failureKind = "io"
)

// classify splits write failures into value errors (the payload itself was
// refused) and everything else, which is treated as an i/o problem.
func classify(err error) failureKind {
	if errors.Is(err, errValueRange) {
		return valueFailure
	}
	var mErr *modbus.ModbusError
	if errors.As(err, &mErr) && mErr.ExceptionCode == modbus.ExceptionCodeIllegalDataValue {
		return valueFailure
	}
	return ioFailure
}

type registerWriter interface {
	writeRegisters(start uint16, values []uint16) error
}

type probeSummary struct {
	Attempts    int
	Succeeded   int
	ValueErrors int
	IOErrors    int
	Interrupted bool
}

func (ps probeSummary) String() string {
	s := fmt.Sprintf("%d writes, %d ok, %d value errors, %d i/o errors",
		ps.Attempts, ps.Succeeded, ps.ValueErrors, ps.IOErrors)
	if ps.Interrupted {
		s += " (interrupted)"
	}
	return s
}

// prober writes prefix++[i] to start for i in 1..iterations. Every failure is
// logged once and the loop moves on; nothing is retried.
type prober struct {
	writer     registerWriter
	start      uint16
	prefix     []uint16
	iterations int
	logger     *log.Logger
	quit       <-chan struct{}
}

func newProber(w registerWriter, cfg probeData, logger *log.Logger) *prober {
	if logger == nil {
		logger = log.Default()
	}
	return &prober{
		writer:     w,
		start:      cfg.Start,
		prefix:     cfg.Prefix,
		iterations: cfg.Iterations,
		logger:     logger,
	}
}

func (p *prober) run() probeSummary {
	var sum probeSummary
	for i := 1; i <= p.iterations; i++ {
		select {
		case <-p.quit:
			p.logger.Printf("Probe: stopped before iteration %d", i)
			sum.Interrupted = true
			return sum
		default:
		}

		sum.Attempts++
		err := p.attempt(i)
		if err == nil {
			sum.Succeeded++
			continue
		}
		kind := classify(err)
		if kind == valueFailure {
			sum.ValueErrors++
		} else {
			sum.IOErrors++
		}
		p.logger.Printf("Probe: iteration %d: %s error: %v", i, kind, err)
	}
	return sum
}

func (p *prober) attempt(i int) error {
	values, err := probePayload(p.prefix, i)
	if err != nil {
		return err
	}
	return p.writer.writeRegisters(p.start, values)
}

func probePayload(prefix []uint16, i int) ([]uint16, error) {
	if i < 0 || i > 0xffff {
		return nil, fmt.Errorf("payload value %d: %w", i, errValueRange)
	}
	values := make([]uint16, 0, len(prefix)+1)
	values = append(values, prefix...)
	return append(values, uint16(i)), nil
}

// runProbe runs the write loop and, unless interrupted or disabled, the
// trailing read.
func runProbe(s *session, cfg configData, out io.Writer, logger *log.Logger, quit <-chan struct{}, pub *publisher) (probeSummary, error) {
	p := newProber(s, cfg.Probe, logger)
	p.quit = quit
	p.logger.Printf("Probe: writing %v+[i] to register %d for i in 1..%d", cfg.Probe.Prefix, cfg.Probe.Start, cfg.Probe.Iterations)

	sum := p.run()
	p.logger.Printf("Probe: %s", sum)
	if !cfg.Probe.ThenRead || sum.Interrupted {
		return sum, nil
	}
	_, err := runRead(s, cfg.Read, out, pub)
	return sum, err
}
