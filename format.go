package main

import (
	"fmt"
	"strings"

	"github.com/zathras777/modbusdev"
)

type formatter func(values []uint16) (string, error)

var formatters = map[string]formatter{
	"uint16": formatUint16,
	"hex":    formatHex,
	"ieee32": formatIeee32,
}

func formatValues(format string, values []uint16) (string, error) {
	fn, ok := formatters[format]
	if !ok {
		return "", fmt.Errorf("unknown format %q", format)
	}
	return fn(values)
}

func formatUint16(values []uint16) (string, error) {
	return fmt.Sprint(values), nil
}

func formatHex(values []uint16) (string, error) {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("0x%04x", v)
	}
	return "[" + strings.Join(parts, " ") + "]", nil
}

// formatIeee32 reads register pairs as big endian IEEE-754 floats.
func formatIeee32(values []uint16) (string, error) {
	if len(values)%2 != 0 {
		return "", fmt.Errorf("ieee32 needs an even number of registers, got %d", len(values))
	}
	raw := encodeRegisters(values)
	parts := make([]string, 0, len(values)/2)
	for idx := 0; idx < len(raw); idx += 4 {
		var val modbusdev.Value
		val.FormatBytes("ieee32", raw[idx:idx+4])
		parts = append(parts, fmt.Sprintf("%.02f", val.Ieee32))
	}
	return "[" + strings.Join(parts, " ") + "]", nil
}
