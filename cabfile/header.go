package cabfile

import (
	"fmt"
	"io"

	"github.com/n3k/cabset/internal/binutil"
)

// Cabinet option flags, CFHEADER.flags.
const (
	FlagPrevCabinet    uint16 = 1 << iota // bit 0: szCabinetPrev/szDiskPrev present
	FlagNextCabinet                       // bit 1: szCabinetNext/szDiskNext present
	FlagReservePresent                    // bit 2: reserve-size triple and abReserve present
)

// reserveFiller is the byte used to pad abReserve fields (§6).
const reserveFiller = 0x41

// ReserveSizes carries the three optional per-structure reserve sizes a
// cabinet may declare in its header.
type ReserveSizes struct {
	Header uint16 // cbCFHeader
	Folder uint8  // cbCFFolder
	Data   uint8  // cbCFData
}

func (r ReserveSizes) any() bool {
	return r.Header != 0 || r.Folder != 0 || r.Data != 0
}

// Header mirrors CFHEADER, the fixed per-volume prologue.
type Header struct {
	Reserved1, Reserved2, Reserved3 uint32
	CbCabinet                       uint32 // size of this cabinet file in bytes
	CoffFiles                       uint32 // offset of the first CFFILE entry
	VersionMinor, VersionMajor      uint8
	CFolders                        uint16
	CFiles                          uint16
	Flags                           uint16
	SetID                           uint16
	ICabinet                        uint16

	Reserve ReserveSizes
	// AbReserve holds Reserve.Header bytes of per-cabinet reserved data,
	// populated with reserveFiller at construction when ReserveSizes.any().
	AbReserve []byte

	CabinetPrev, DiskPrev string
	CabinetNext, DiskNext string
}

// NewHeader returns a header for volume iCabinet of set setID. If any
// reserve size is non-zero, FlagReservePresent is set and AbReserve is
// filled with reserveFiller bytes per §6.
func NewHeader(setID, iCabinet uint16, reserve ReserveSizes) *Header {
	h := &Header{
		VersionMinor: 3,
		VersionMajor: 1,
		SetID:        setID,
		ICabinet:     iCabinet,
		Reserve:      reserve,
	}
	if reserve.any() {
		h.Flags |= FlagReservePresent
		h.AbReserve = make([]byte, reserve.Header)
		for i := range h.AbReserve {
			h.AbReserve[i] = reserveFiller
		}
	}
	return h
}

// Len returns the header's serialized length given its current fields.
func (h *Header) Len() int {
	n := 4 + 4 + 4 + 4 + 4 + 4 + 1 + 1 + 2 + 2 + 2 + 2 + 2 // fixed CFHEADER prologue (36 bytes)
	if h.Flags&FlagReservePresent != 0 {
		n += 2 + 1 + 1 + len(h.AbReserve)
	}
	if h.Flags&FlagPrevCabinet != 0 {
		n += len(h.CabinetPrev) + 1 + len(h.DiskPrev) + 1
	}
	if h.Flags&FlagNextCabinet != 0 {
		n += len(h.CabinetNext) + 1 + len(h.DiskNext) + 1
	}
	return n
}

// WriteTo serializes the header, matching Len() bit-for-bit.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	var written int64
	write := func(p []byte) error {
		n, err := w.Write(p)
		written += int64(n)
		return err
	}
	if err := write([]byte("MSCF")); err != nil {
		return written, err
	}
	for _, v := range []uint32{h.Reserved1, h.CbCabinet, h.Reserved2, h.CoffFiles, h.Reserved3} {
		b, err := binutil.PutUint32(uint64(v))
		if err != nil {
			return written, fmt.Errorf("cabfile: header field overflow: %w", ErrOverflow)
		}
		if err := write(b[:]); err != nil {
			return written, err
		}
	}
	if err := write([]byte{h.VersionMinor, h.VersionMajor}); err != nil {
		return written, err
	}
	for _, v := range []uint16{h.CFolders, h.CFiles, h.Flags, h.SetID, h.ICabinet} {
		b, err := binutil.PutUint16(uint64(v))
		if err != nil {
			return written, fmt.Errorf("cabfile: header field overflow: %w", ErrOverflow)
		}
		if err := write(b[:]); err != nil {
			return written, err
		}
	}
	if h.Flags&FlagReservePresent != 0 {
		b16, err := binutil.PutUint16(uint64(h.Reserve.Header))
		if err != nil {
			return written, fmt.Errorf("cabfile: cbCFHeader overflow: %w", ErrOverflow)
		}
		if err := write(b16[:]); err != nil {
			return written, err
		}
		if err := write([]byte{h.Reserve.Folder, h.Reserve.Data}); err != nil {
			return written, err
		}
		if err := write(h.AbReserve); err != nil {
			return written, err
		}
	}
	if h.Flags&FlagPrevCabinet != 0 {
		if err := write(binutil.NulString(h.CabinetPrev)); err != nil {
			return written, err
		}
		if err := write(binutil.NulString(h.DiskPrev)); err != nil {
			return written, err
		}
	}
	if h.Flags&FlagNextCabinet != 0 {
		if err := write(binutil.NulString(h.CabinetNext)); err != nil {
			return written, err
		}
		if err := write(binutil.NulString(h.DiskNext)); err != nil {
			return written, err
		}
	}
	return written, nil
}
