package testutil

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/nshusa/battlerune-server/internal/constants"
	"github.com/nshusa/battlerune-server/internal/gameserver/packet"
)

// AssertPlayerUpdate проверяет opcode и framing пакета синхронизации игроков.
func AssertPlayerUpdate(tb testing.TB, pkt packet.Packet) {
	tb.Helper()

	if pkt.Opcode != constants.PlayerUpdateOpcode {
		tb.Fatalf("opcode mismatch: expected %d, got %d", constants.PlayerUpdateOpcode, pkt.Opcode)
	}
	if pkt.Framing != packet.FramingVarShort {
		tb.Fatalf("framing mismatch: expected %s, got %s", packet.FramingVarShort, pkt.Framing)
	}
}

// AssertPayload сравнивает payload с ожидаемым и печатает оба дампа при расхождении.
func AssertPayload(tb testing.TB, expected []byte, pkt packet.Packet) {
	tb.Helper()

	if !bytes.Equal(expected, pkt.Payload) {
		tb.Fatalf("payload mismatch\nexpected:\n%sactual:\n%s", DumpPacket(expected), DumpPacket(pkt.Payload))
	}
}

// DumpPacket возвращает hex dump для отладки, по 16 байт в строке.
func DumpPacket(data []byte) string {
	var buf bytes.Buffer
	for i := 0; i < len(data); i += 16 {
		chunk := data[i:min(i+16, len(data))]

		fmt.Fprintf(&buf, "%04x ", i)
		for j, b := range chunk {
			if j == 8 {
				buf.WriteByte(' ')
			}
			fmt.Fprintf(&buf, " %02x", b)
		}
		buf.WriteByte('\n')
	}
	if len(data) == 0 {
		buf.WriteString("(empty)\n")
	}
	return buf.String()
}
