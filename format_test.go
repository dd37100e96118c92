package main

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestFormatValues(t *testing.T) {
	values := []uint16{1, 2, 0xbeef}

	got, err := formatValues("uint16", values)
	if err != nil || got != "[1 2 48879]" {
		t.Fatalf("uint16 = %q, %v", got, err)
	}
	got, err = formatValues("hex", values)
	if err != nil || got != "[0x0001 0x0002 0xbeef]" {
		t.Fatalf("hex = %q, %v", got, err)
	}
	if _, err = formatValues("ieee32", values); err == nil {
		t.Fatal("ieee32 with an odd register count should fail")
	}
	if _, err = formatValues("bcd", values); err == nil {
		t.Fatal("unknown format should fail")
	}
}

func TestFormatIeee32(t *testing.T) {
	bits := math.Float32bits(12.34)
	values := []uint16{uint16(bits >> 16), uint16(bits)}

	got, err := formatValues("ieee32", values)
	if err != nil {
		t.Fatalf("ieee32: %v", err)
	}
	if got != "[12.34]" {
		t.Fatalf("ieee32 = %q, want [12.34]", got)
	}

	raw := encodeRegisters(values)
	if binary.BigEndian.Uint32(raw) != bits {
		t.Fatalf("register encoding lost the float bits: % x", raw)
	}
}
