package data

import (
	"dsbuild/process"
	"dsbuild/storage/fio"
	"errors"
)

var (
	ErrInvalidCRC = errors.New("invalid crc")
	ErrEOF        = errors.New("end of file")
	ErrShortWrite = errors.New("record written partially")
	ErrTornTail   = errors.New("file ends with a partial record")
)

// Storage is what a record file needs from the underlying file.
// Both process.File and fio.Manager-backed files fit.
type Storage interface {
	Read(b []byte, offset int64) (int, error)
	Append(b []byte) (int, error)
}

// File reads and appends records.
type File struct {
	WriteOff int64
	storage  Storage
	torn     bool
}

func NewFile(storage Storage) *File {
	return &File{storage: storage}
}

// ReadRecord reads the record at offset and returns it with its encoded size.
// ErrEOF is returned at the end of data, including a torn tail.
func (df *File) ReadRecord(offset int64) (*Record, int64, error) {
	prefixBuf, err := df.readNBytes(maxPrefixSize, offset)
	if err != nil {
		return nil, 0, err
	}
	prefix, ok := decodePrefix(prefixBuf)
	if !ok {
		return nil, 0, ErrEOF
	}
	size := prefix.size + int64(prefix.keySize) + int64(prefix.valueSize) + checksumSize
	buf, err := df.readNBytes(size, offset)
	if err != nil {
		return nil, 0, err
	}
	if int64(len(buf)) < size {
		return nil, 0, ErrEOF
	}
	record, ok := decodeBody(buf, prefix)
	if !ok {
		return nil, 0, ErrInvalidCRC
	}
	return record, size, nil
}

// ReadAll reads records from the beginning of the file and moves WriteOff
// past the last valid one.
func (df *File) ReadAll() ([]*Record, error) {
	var records []*Record
	var offset int64
	for {
		record, size, err := df.ReadRecord(offset)
		if errors.Is(err, ErrEOF) {
			break
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
		offset += size
	}
	df.WriteOff = offset
	rest, err := df.readNBytes(1, offset)
	if err != nil {
		return records, err
	}
	df.torn = len(rest) > 0
	return records, nil
}

// Torn reports whether bytes of a partial record follow the last record.
// Nothing can be appended to a torn file.
func (df *File) Torn() bool {
	return df.torn
}

// Write appends an encoded record.
func (df *File) Write(record *Record) error {
	if df.torn {
		return ErrTornTail
	}
	buf, size := EncodeRecord(record)
	n, err := df.storage.Append(buf)
	if n > 0 && int64(n) < size {
		df.torn = true
		return ErrShortWrite
	}
	if err != nil {
		return err
	}
	df.WriteOff += int64(n)
	return nil
}

// readNBytes reads up to n bytes in chunks the storage accepts.
// The result is shorter than n only at the end of the file.
func (df *File) readNBytes(n int64, offset int64) ([]byte, error) {
	b := make([]byte, n)
	var read int64
	for read < n {
		chunk := b[read:]
		if len(chunk) > process.MaxBufferSize {
			chunk = chunk[:process.MaxBufferSize]
		}
		m, err := df.storage.Read(chunk, offset+read)
		if err != nil {
			return nil, err
		}
		if m == 0 {
			break
		}
		read += int64(m)
	}
	return b[:read], nil
}

type managerStorage struct {
	fio.Manager
}

func (m managerStorage) Append(b []byte) (int, error) {
	return m.Write(b)
}

// OpenManagerFile wraps an io manager into a record file positioned at its end.
func OpenManagerFile(manager fio.Manager) (*File, error) {
	size, err := manager.Size()
	if err != nil {
		return nil, err
	}
	return &File{WriteOff: size, storage: managerStorage{manager}}, nil
}
