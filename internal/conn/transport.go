// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package conn

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// WritePacket frames p onto w as a 4-byte big-endian payload length,
// followed by the protocol byte, a reliable flag byte, then the raw
// payload. internal/ron's gob.Encoder/Decoder pair over net.Conn was
// the obvious transport precedent here, but gob was deliberately not
// reused for the payload itself (see internal/channel's grounding
// note: spec.md §6.1 fixes an exact byte layout gob would paper over),
// so the outer framing extends the same big-endian convention pkg/wire
// already uses instead of introducing a second serialization scheme
// just for the length prefix.
func WritePacket(w io.Writer, p Packet) error {
	var header [6]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(p.Payload)))
	header[4] = byte(p.Protocol)
	if p.Reliable {
		header[5] = 1
	}

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("conn: write packet header: %w", err)
	}
	if len(p.Payload) > 0 {
		if _, err := w.Write(p.Payload); err != nil {
			return fmt.Errorf("conn: write packet payload: %w", err)
		}
	}
	return nil
}

// WriteCollection frames every packet in pc onto w in order.
func WriteCollection(w io.Writer, pc PacketCollection) error {
	for _, p := range pc {
		if err := WritePacket(w, p); err != nil {
			return err
		}
	}
	return nil
}

// ReadPacket reads one framed packet from r. Callers that read many
// packets from the same stream should wrap r in a *bufio.Reader once
// and reuse it, rather than calling this directly on a raw net.Conn
// per call.
func ReadPacket(r *bufio.Reader) (Packet, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Packet{}, err
	}

	size := binary.BigEndian.Uint32(header[0:4])
	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Packet{}, fmt.Errorf("conn: read packet payload: %w", err)
		}
	}

	return Packet{
		Protocol: Protocol(header[4]),
		Reliable: header[5] == 1,
		Payload:  payload,
	}, nil
}
