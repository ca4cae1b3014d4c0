package cabfile

import (
	"fmt"
	"io"
	"time"

	"github.com/n3k/cabset/internal/binutil"
)

// Continuation sentinels and plain folder-index values for CFFILE.iFolder.
const (
	FolderThisCabinet       uint16 = 0x0000
	FolderContinuedFromPrev uint16 = 0xFFFD
	FolderContinuedToNext   uint16 = 0xFFFE
	FolderContinuedPrevNext uint16 = 0xFFFF
	maxPlainFolderIndex     uint16 = 0xFFFC
)

// File attribute bits, CFFILE.attribs.
const (
	AttribReadOnly uint16 = 1 << iota
	AttribHidden
	AttribSystem
	_
	_
	AttribArchive
	AttribExec
	AttribNameIsUTF
)

// File mirrors CFFILE: one logical file's record within a folder. A file
// that straddles a volume boundary gets a separate File record on each
// volume it touches (see Folder-index below).
type File struct {
	CbFile          uint32 // uncompressed size of the whole logical file
	UoffFolderStart uint32 // uncompressed offset of this record's payload within its folder
	IFolder         uint16 // continuation sentinel, or a folder index within the volume
	Date, Time      uint16 // MS-DOS encoded
	Attribs         uint16
	Name            string
}

// NewFile builds a file record for totalSize bytes of logical file name,
// initially addressed to folder index ifolder. now supplies the
// construction timestamp (inject a fixed clock for deterministic tests).
func NewFile(ifolder uint16, name string, totalSize uint32, now time.Time) *File {
	return &File{
		CbFile:  totalSize,
		IFolder: ifolder,
		Date:    dosDate(now),
		Time:    dosTime(now),
		Attribs: AttribArchive,
		Name:    name,
	}
}

// dosDate encodes t per §6: ((year-1980)<<9)|(month<<5)|day.
func dosDate(t time.Time) uint16 {
	return uint16((t.Year()-1980)<<9) | uint16(int(t.Month())<<5) | uint16(t.Day())
}

// dosTime encodes t per §6: (hour<<11)|(minute<<5)|(second/2).
func dosTime(t time.Time) uint16 {
	return uint16(t.Hour()<<11) | uint16(t.Minute()<<5) | uint16(t.Second()/2)
}

// IsContinuationSentinel reports whether v is one of the three
// continuation sentinels rather than a plain folder index.
func IsContinuationSentinel(v uint16) bool {
	switch v {
	case FolderContinuedFromPrev, FolderContinuedToNext, FolderContinuedPrevNext:
		return true
	}
	return false
}

// OrSentinel combines sentinel into cur following the OR-combining rule
// of §4.D: if cur already names a recognized sentinel, OR sentinel into
// it (accumulating toward FolderContinuedPrevNext); otherwise sentinel
// replaces cur outright.
func OrSentinel(cur, sentinel uint16) uint16 {
	if IsContinuationSentinel(cur) {
		return cur | sentinel
	}
	return sentinel
}

// Len returns the file record's serialized length.
func (f *File) Len() int {
	return 4 + 4 + 2 + 2 + 2 + 2 + len(f.Name) + 1
}

// WriteTo serializes the file record, matching Len() bit-for-bit.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	var written int64
	write32 := func(v uint32) error {
		b, err := binutil.PutUint32(uint64(v))
		if err != nil {
			return fmt.Errorf("cabfile: file field overflow: %w", ErrOverflow)
		}
		n, err := w.Write(b[:])
		written += int64(n)
		return err
	}
	write16 := func(v uint16) error {
		b, err := binutil.PutUint16(uint64(v))
		if err != nil {
			return fmt.Errorf("cabfile: file field overflow: %w", ErrOverflow)
		}
		n, err := w.Write(b[:])
		written += int64(n)
		return err
	}
	if err := write32(f.CbFile); err != nil {
		return written, err
	}
	if err := write32(f.UoffFolderStart); err != nil {
		return written, err
	}
	for _, v := range []uint16{f.IFolder, f.Date, f.Time, f.Attribs} {
		if err := write16(v); err != nil {
			return written, err
		}
	}
	n, err := w.Write(binutil.NulString(f.Name))
	written += int64(n)
	return written, err
}
