package data

import (
	"encoding/binary"
	"hash/crc32"
)

type RecordType = byte

const (
	RecordNormal RecordType = iota
	RecordDeleted
)

// Record is the unit stored in append-only files.
type Record struct {
	Key   []byte
	Value []byte
	Type  RecordType
}

// A record is laid out as
//
//	type (1) | key length (uvarint) | value length (uvarint) | key | value | checksum (4)
//
// The checksum is CRC-32C of everything before it, little endian.
const (
	maxPrefixSize = 1 + 2*binary.MaxVarintLen32
	checksumSize  = 4
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeRecord returns the encoded record and its size.
func EncodeRecord(r *Record) ([]byte, int64) {
	buf := make([]byte, 0, maxPrefixSize+len(r.Key)+len(r.Value)+checksumSize)
	buf = append(buf, r.Type)
	buf = binary.AppendUvarint(buf, uint64(len(r.Key)))
	buf = binary.AppendUvarint(buf, uint64(len(r.Value)))
	buf = append(buf, r.Key...)
	buf = append(buf, r.Value...)
	buf = binary.LittleEndian.AppendUint32(buf, crc32.Checksum(buf, castagnoli))
	return buf, int64(len(buf))
}

type recordPrefix struct {
	recordType RecordType
	keySize    uint64
	valueSize  uint64
	size       int64
}

// decodePrefix returns false when buf does not hold a whole prefix.
func decodePrefix(buf []byte) (recordPrefix, bool) {
	if len(buf) < 3 {
		return recordPrefix{}, false
	}
	p := recordPrefix{recordType: buf[0]}
	off := 1
	for _, size := range []*uint64{&p.keySize, &p.valueSize} {
		v, n := binary.Uvarint(buf[off:])
		if n <= 0 {
			return recordPrefix{}, false
		}
		*size = v
		off += n
	}
	p.size = int64(off)
	return p, true
}

// decodeBody checks the checksum of an encoded record and fills r from it.
func decodeBody(buf []byte, p recordPrefix) (*Record, bool) {
	end := len(buf) - checksumSize
	if crc32.Checksum(buf[:end], castagnoli) != binary.LittleEndian.Uint32(buf[end:]) {
		return nil, false
	}
	body := buf[p.size:end]
	return &Record{
		Type:  p.recordType,
		Key:   body[:p.keySize],
		Value: body[p.keySize:],
	}, true
}
