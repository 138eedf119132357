package logengine

import (
	"encoding/binary"
	"hash/crc32"
)

// Block framing on disk: varint(len(data)) | data | crc32c(data). Adapted
// from internal/eventlog's record.go, dropping its header field since a
// block-log entry here is always a single opaque payload.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeBlock(data []byte) []byte {
	out := make([]byte, 0, 10+len(data)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(data)))
	out = append(out, tmp[:n]...)
	out = append(out, data...)

	crc := crc32.Checksum(data, castagnoli)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

func decodeBlock(b []byte) ([]byte, bool) {
	if len(b) < 1+4 {
		return nil, false
	}
	dlen, n := binary.Uvarint(b)
	if n <= 0 || n+int(dlen)+4 > len(b) {
		return nil, false
	}
	data := b[n : n+int(dlen)]
	expect := binary.BigEndian.Uint32(b[n+int(dlen):])
	if crc32.Checksum(data, castagnoli) != expect {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
