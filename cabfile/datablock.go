package cabfile

import (
	"fmt"
	"io"

	"github.com/n3k/cabset/internal/binutil"
)

// MaxBlockPayload is the largest payload a single data block may carry
// (invariant 8).
const MaxBlockPayload = 0x8000

// DataBlock mirrors CFDATA: a bounded fragment of folder payload bytes.
// Checksum is always emitted as zero (checksum computation is out of
// scope); CbUncomp always equals CbData since this module never
// compresses.
type DataBlock struct {
	Checksum uint32
	CbData   uint16
	CbUncomp uint16

	// AbReserve holds the block's reserve bytes (length header.Reserve.Data).
	AbReserve []byte
	Payload   []byte
}

// NewDataBlock wraps payload (which must be <= MaxBlockPayload bytes)
// into a data block, filling its reserve bytes from hdr's reserve sizes.
func NewDataBlock(hdr *Header, payload []byte) (*DataBlock, error) {
	if len(payload) > MaxBlockPayload {
		return nil, fmt.Errorf("cabfile: data block payload of %d bytes exceeds max %d", len(payload), MaxBlockPayload)
	}
	d := &DataBlock{
		CbData:   uint16(len(payload)),
		CbUncomp: uint16(len(payload)),
		Payload:  payload,
	}
	if hdr.Flags&FlagReservePresent != 0 {
		d.AbReserve = make([]byte, hdr.Reserve.Data)
		for i := range d.AbReserve {
			d.AbReserve[i] = reserveFiller
		}
	}
	return d, nil
}

// Len returns the data block's serialized length.
func (d *DataBlock) Len() int {
	return 4 + 2 + 2 + len(d.AbReserve) + len(d.Payload)
}

// WriteTo serializes the data block, matching Len() bit-for-bit.
func (d *DataBlock) WriteTo(w io.Writer) (int64, error) {
	var written int64
	b32, err := binutil.PutUint32(uint64(d.Checksum))
	if err != nil {
		return written, fmt.Errorf("cabfile: data block checksum overflow: %w", ErrOverflow)
	}
	n, err := w.Write(b32[:])
	written += int64(n)
	if err != nil {
		return written, err
	}
	for _, v := range []uint16{d.CbData, d.CbUncomp} {
		b16, err := binutil.PutUint16(uint64(v))
		if err != nil {
			return written, fmt.Errorf("cabfile: data block field overflow: %w", ErrOverflow)
		}
		n, err := w.Write(b16[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	n, err = w.Write(d.AbReserve)
	written += int64(n)
	if err != nil {
		return written, err
	}
	n, err = w.Write(d.Payload)
	written += int64(n)
	return written, err
}
