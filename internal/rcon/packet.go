package rcon

import (
	"encoding/binary"
	"errors"
	"io"
)

// PacketType is the RCON packet type field.
type PacketType int32

const (
	// PacketResponse is the type the server uses for command replies.
	PacketResponse PacketType = 0
	// PacketCommand carries a console command. Servers also use this value
	// for the reply to a login packet.
	PacketCommand PacketType = 2
	// PacketLogin carries the RCON password.
	PacketLogin PacketType = 3
)

const (
	// MaxPayloadLength is the largest payload accepted by Encode.
	MaxPayloadLength = 1460

	// MaxResponseLength is the largest payload accepted from a server.
	MaxResponseLength = 4096

	// headerSize is the length prefix plus request id plus type.
	headerSize = 12

	// paddingSize is the two null bytes terminating every packet.
	paddingSize = 2

	// wrapperSize is what the length field counts besides the payload.
	wrapperSize = headerSize - 4 + paddingSize

	// minPacketSize is a full packet with an empty payload.
	minPacketSize = headerSize + paddingSize
)

// Packet is a single RCON request or response.
type Packet struct {
	RequestID int32
	Type      PacketType
	Payload   string
}

// Encode serializes p. The payload must be ASCII and at most MaxPayloadLength
// bytes long.
func Encode(p Packet) ([]byte, error) {
	if i := nonASCIIIndex(p.Payload); i >= 0 {
		return nil, protocolErrorf(NonASCII, "byte 0x%02x at offset %d", p.Payload[i], i)
	}
	if len(p.Payload) > MaxPayloadLength {
		return nil, protocolErrorf(PayloadTooLong, "%d bytes, maximum is %d", len(p.Payload), MaxPayloadLength)
	}

	buf := make([]byte, minPacketSize+len(p.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(p.Payload)+wrapperSize))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.RequestID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.Type))
	copy(buf[headerSize:], p.Payload)
	// The trailing two bytes are already zero.
	return buf, nil
}

// Decode parses exactly one packet from b. The declared length must account
// for every byte in b.
func Decode(b []byte) (Packet, error) {
	if len(b) < minPacketSize {
		return Packet{}, protocolErrorf(Truncated, "%d bytes, need at least %d", len(b), minPacketSize)
	}

	declared := int64(int32(binary.LittleEndian.Uint32(b[0:4])))
	if declared < wrapperSize {
		return Packet{}, protocolErrorf(LengthMismatch, "declared length %d is below minimum %d", declared, wrapperSize)
	}
	total := declared + 4
	if total > int64(len(b)) {
		return Packet{}, protocolErrorf(Truncated, "declared %d bytes, have %d", total, len(b))
	}
	if total != int64(len(b)) {
		return Packet{}, protocolErrorf(LengthMismatch, "declared %d bytes, have %d", total, len(b))
	}

	end := len(b) - paddingSize
	if b[end] != 0 || b[end+1] != 0 {
		return Packet{}, protocolErrorf(LengthMismatch, "missing null padding")
	}

	return Packet{
		RequestID: int32(binary.LittleEndian.Uint32(b[4:8])),
		Type:      PacketType(int32(binary.LittleEndian.Uint32(b[8:12]))),
		Payload:   string(b[headerSize:end]),
	}, nil
}

// ReadPacket reads one packet from r. Responses up to MaxResponseLength payload
// bytes are accepted.
func ReadPacket(r io.Reader) (Packet, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Packet{}, readError(err)
	}

	declared := int64(int32(binary.LittleEndian.Uint32(prefix[:])))
	if declared < wrapperSize || declared > MaxResponseLength+wrapperSize {
		return Packet{}, protocolErrorf(LengthMismatch, "declared length %d outside [%d, %d]",
			declared, wrapperSize, MaxResponseLength+wrapperSize)
	}

	buf := make([]byte, 4+declared)
	copy(buf, prefix[:])
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return Packet{}, readError(err)
	}
	return Decode(buf)
}

// WritePacket encodes p and writes it to w in a single call.
func WritePacket(w io.Writer, p Packet) error {
	b, err := Encode(p)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// readError maps a short read to ErrTruncated and passes everything else
// through. A clean EOF before any byte is returned unchanged so callers can
// tell a closed connection from a cut-off packet.
func readError(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return protocolErrorf(Truncated, "stream ended mid-packet")
	}
	return err
}

func nonASCIIIndex(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return i
		}
	}
	return -1
}
