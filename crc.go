package main

import "encoding/binary"

// modbusCRC is the CRC-16/MODBUS checksum (poly 0xA001 reflected, init 0xFFFF).
func modbusCRC(msg []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range msg {
		crc ^= uint16(b)
		for bit := 0; bit < 8; bit++ {
			if crc&0x0001 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// appendCRC terminates an RTU frame. The checksum goes on the wire low byte first.
func appendCRC(frame []byte) []byte {
	var sum [2]byte
	binary.LittleEndian.PutUint16(sum[:], modbusCRC(frame))
	return append(frame, sum[:]...)
}
