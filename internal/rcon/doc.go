// Package rcon implements the Minecraft remote console (RCON) protocol.
//
// The package has two layers:
//
//   - A packet codec (Encode, Decode, ReadPacket) that produces and validates the
//     exact little-endian wire layout:
//
//     int32 length | int32 request_id | int32 type | payload | 0x00 0x00
//
//     where length counts every byte after the length field (len(payload) + 10).
//     Payloads must be ASCII and no longer than MaxPayloadLength bytes.
//
//   - A client (Dial, Session, Client) that authenticates with a Login packet and
//     sends one Command packet at a time, matching replies by request id.
//
// RCON is only spoken over TCP. A Client opens a fresh connection for every call
// (connect, login, command, close); RCON is used for low-frequency administrative
// operations and connection reuse is not worth the failure modes.
//
// Errors are typed. Codec failures are *ProtocolError values and client failures
// are *ClientError values; both can be matched with errors.Is against the
// package sentinels:
//
//	_, err := rcon.Encode(p)
//	if errors.Is(err, rcon.ErrPayloadTooLong) {
//		// shorten the command
//	}
package rcon
