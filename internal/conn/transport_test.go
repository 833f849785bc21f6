// Copyright 2015-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package conn

import (
	"bufio"
	"bytes"
	"testing"
)

func TestWriteReadPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	pc := PacketCollection{
		{Protocol: ProtocolReplicationInit, Payload: []byte{1, 2, 3}},
		{Protocol: ProtocolReplicationDel, Payload: []byte{9}, Reliable: true},
	}

	if err := WriteCollection(&buf, pc); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(&buf)

	got, err := ReadPacket(r)
	if err != nil {
		t.Fatal(err)
	}
	if got.Protocol != ProtocolReplicationInit || !bytes.Equal(got.Payload, []byte{1, 2, 3}) || got.Reliable {
		t.Fatalf("unexpected first packet: %+v", got)
	}

	got, err = ReadPacket(r)
	if err != nil {
		t.Fatal(err)
	}
	if got.Protocol != ProtocolReplicationDel || !bytes.Equal(got.Payload, []byte{9}) || !got.Reliable {
		t.Fatalf("unexpected second packet: %+v", got)
	}
}
