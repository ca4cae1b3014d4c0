package cabfile

import (
	"fmt"
	"io"

	"github.com/n3k/cabset/internal/binutil"
)

// Compression type indicators, CFFOLDER.typeCompress. This module only
// ever writes compNone; the reader stores typeCompress as read and does
// not check it.
const (
	compMask uint16 = 0xf
	compNone uint16 = 0x0
)

// Folder mirrors CFFOLDER: a run of data blocks shared by a group of
// files. It is not a filesystem directory.
type Folder struct {
	CoffCabStart uint32 // absolute offset of the first CFDATA block
	CCFData      uint16 // number of CFDATA blocks
	TypeCompress uint16 // always compNone in this module

	// AbReserve holds the folder's reserve bytes (length header.Reserve.Folder).
	AbReserve []byte

	// Name and ID exist only to drive construction; neither is
	// serialized. Name groups files during building; ID is the
	// synthetic folder-id used to resolve the scattered-folder
	// workaround (see Volume.selectFolder).
	Name string
	ID   int

	dataBlocks []*DataBlock
	files      []*File
}

// NewFolder creates a folder named name under hdr, filling its reserve
// bytes from hdr's reserve sizes when FlagReservePresent is set.
func NewFolder(hdr *Header, id int, name string) *Folder {
	f := &Folder{
		TypeCompress: compNone,
		Name:         name,
		ID:           id,
	}
	if hdr.Flags&FlagReservePresent != 0 {
		f.AbReserve = make([]byte, hdr.Reserve.Folder)
		for i := range f.AbReserve {
			f.AbReserve[i] = reserveFiller
		}
	}
	return f
}

// Len returns the folder's serialized length.
func (f *Folder) Len() int {
	return 4 + 2 + 2 + len(f.AbReserve)
}

// WriteTo serializes the folder, matching Len() bit-for-bit.
func (f *Folder) WriteTo(w io.Writer) (int64, error) {
	var written int64
	b32, err := binutil.PutUint32(uint64(f.CoffCabStart))
	if err != nil {
		return written, fmt.Errorf("cabfile: folder coffCabStart overflow: %w", ErrOverflow)
	}
	n, err := w.Write(b32[:])
	written += int64(n)
	if err != nil {
		return written, err
	}
	for _, v := range []uint16{f.CCFData, f.TypeCompress} {
		b16, err := binutil.PutUint16(uint64(v))
		if err != nil {
			return written, fmt.Errorf("cabfile: folder field overflow: %w", ErrOverflow)
		}
		n, err := w.Write(b16[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	n, err = w.Write(f.AbReserve)
	written += int64(n)
	return written, err
}

// AddDataBlock appends a data block to the folder and bumps CCFData.
func (f *Folder) AddDataBlock(d *DataBlock) {
	f.dataBlocks = append(f.dataBlocks, d)
	f.CCFData++
}

// AddFile appends a file record to the folder's insertion order, used
// for the prefix-sum offset recomputation.
func (f *Folder) AddFile(file *File) {
	f.files = append(f.files, file)
}

// DataBlocks returns the folder's data blocks in order.
func (f *Folder) DataBlocks() []*DataBlock { return f.dataBlocks }

// Files returns the folder's file records in insertion order.
func (f *Folder) Files() []*File { return f.files }
