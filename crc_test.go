package main

import (
	"bytes"
	"testing"
)

func TestModbusCRC(t *testing.T) {
	tests := []struct {
		msg  []byte
		want uint16
	}{
		{[]byte{0x01, 0x03, 0x00, 0x0e, 0x00, 0x01}, 0xc9e5},
		{[]byte{0x01, 0x03, 0x50, 0x00, 0x00, 0x18}, 0xc054},
		{[]byte{0x01, 0x10, 0x8a, 0x00, 0x00, 0x03}, 0x10aa},
	}
	for _, tc := range tests {
		if got := modbusCRC(tc.msg); got != tc.want {
			t.Errorf("modbusCRC(% x) = %04x, want %04x", tc.msg, got, tc.want)
		}
	}
}

func TestAppendCRC(t *testing.T) {
	got := appendCRC([]byte{0x01, 0x03, 0x00, 0x0e, 0x00, 0x01})
	want := []byte{0x01, 0x03, 0x00, 0x0e, 0x00, 0x01, 0xe5, 0xc9}
	if !bytes.Equal(got, want) {
		t.Fatalf("appendCRC = % x, want % x", got, want)
	}
}
