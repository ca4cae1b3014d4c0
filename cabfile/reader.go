package cabfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/n3k/cabset/internal/binutil"
)

// ParsedCabinet is the record graph produced by ReadVolume: one
// volume's header, folders, and the flat (in on-disk order) file and
// data-block lists. It implements Cabinet, the same capability set
// Volume exposes for the writer side.
type ParsedCabinet struct {
	hdr        *Header
	folders    []*Folder
	files      []*File
	dataBlocks []*DataBlock
}

// CabHeader implements Cabinet.
func (p *ParsedCabinet) CabHeader() *Header { return p.hdr }

// CabFolders implements Cabinet.
func (p *ParsedCabinet) CabFolders() []*Folder { return p.folders }

// CabFiles implements Cabinet.
func (p *ParsedCabinet) CabFiles() []*File { return p.files }

// CabDataBlocks implements Cabinet.
func (p *ParsedCabinet) CabDataBlocks() []*DataBlock { return p.dataBlocks }

// FileList returns the names of every file in this volume, in on-disk
// order. It assumes a single, non-continued volume (lvfscab's use
// case); sets that span multiple volumes should use package extract.
func (p *ParsedCabinet) FileList() []string {
	names := make([]string, len(p.files))
	for i, f := range p.files {
		names[i] = f.Name
	}
	return names
}

// Content returns the reassembled payload of the named file, reading
// sequentially through the volume's data blocks exactly as a single,
// non-continued cabinet lays them out. It returns an error if name is
// not present.
//
// It assumes each file's blocks start where the previous file's left
// off (true of every cabinet this module writes) rather than consulting
// uoffFolderStart; a cabinet from another producer whose data blocks are
// shared across file boundaries in some other arrangement would
// misalign here. Package extract's blockCursor is the one that honors
// mid-block splits, for the multi-volume case that actually needs it.
func (p *ParsedCabinet) Content(name string) (io.Reader, error) {
	idx := 0
	for _, f := range p.files {
		data := p.consumeBlocks(&idx, f.CbFile)
		if f.Name == name {
			return bytes.NewReader(data), nil
		}
	}
	return nil, fmt.Errorf("cabfile: file %q not found", name)
}

// consumeBlocks reads consecutive data blocks starting at *idx until
// at least want uncompressed bytes have been gathered, advancing *idx
// past every block consumed.
func (p *ParsedCabinet) consumeBlocks(idx *int, want uint32) []byte {
	var data []byte
	var got uint32
	for got < want && *idx < len(p.dataBlocks) {
		b := p.dataBlocks[*idx]
		data = append(data, b.Payload...)
		got += uint32(b.CbUncomp)
		*idx++
	}
	return data
}

// countingReader wraps a bufio.Reader so ReadVolume can cross-check
// the declared coffFiles/cbCabinet offsets against the number of bytes
// actually consumed (invariants 4-5).
type countingReader struct {
	br *bufio.Reader
	n  int
}

func newCountingReader(r io.Reader) *countingReader {
	return &countingReader{br: bufio.NewReader(r)}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := io.ReadFull(c.br, p)
	c.n += n
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.br.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

// ReadVolume parses a single CAB volume from r, in the order the format
// lays it out: header, folders, files, then data blocks (component E).
// It does not follow szCabinetNext across volumes, that is
// extract.Extract's job.
func ReadVolume(r io.Reader) (*ParsedCabinet, error) {
	cr := newCountingReader(r)

	hdr, err := parseHeader(cr)
	if err != nil {
		return nil, err
	}
	folders, err := parseFolders(cr, hdr)
	if err != nil {
		return nil, err
	}
	if cr.n != int(hdr.CoffFiles) {
		return nil, fmt.Errorf("cabfile: coffFiles declared %d, observed %d: %w", hdr.CoffFiles, cr.n, ErrInvalidLayout)
	}
	files, err := parseFiles(cr, hdr)
	if err != nil {
		return nil, err
	}
	dataBlocks, err := parseDataBlocks(cr, hdr, folders)
	if err != nil {
		return nil, err
	}
	if cr.n != int(hdr.CbCabinet) {
		return nil, fmt.Errorf("cabfile: cbCabinet declared %d, observed %d: %w", hdr.CbCabinet, cr.n, ErrInvalidLayout)
	}
	return &ParsedCabinet{hdr: hdr, folders: folders, files: files, dataBlocks: dataBlocks}, nil
}

func parseHeader(cr *countingReader) (*Header, error) {
	var sig [4]byte
	if _, err := cr.Read(sig[:]); err != nil {
		return nil, fmt.Errorf("cabfile: could not read signature: %w", ErrIO)
	}
	if string(sig[:]) != "MSCF" {
		return nil, fmt.Errorf("cabfile: signature %q: %w", sig, ErrInvalidMagic)
	}

	h := &Header{}
	var err error
	if h.Reserved1, err = binutil.ReadUint32(cr); err != nil {
		return nil, err
	}
	if h.CbCabinet, err = binutil.ReadUint32(cr); err != nil {
		return nil, err
	}
	if h.Reserved2, err = binutil.ReadUint32(cr); err != nil {
		return nil, err
	}
	if h.CoffFiles, err = binutil.ReadUint32(cr); err != nil {
		return nil, err
	}
	if h.Reserved3, err = binutil.ReadUint32(cr); err != nil {
		return nil, err
	}
	vMinor, err := binutil.ReadUint8(cr)
	if err != nil {
		return nil, err
	}
	h.VersionMinor = vMinor
	vMajor, err := binutil.ReadUint8(cr)
	if err != nil {
		return nil, err
	}
	h.VersionMajor = vMajor
	if h.CFolders, err = binutil.ReadUint16(cr); err != nil {
		return nil, err
	}
	if h.CFiles, err = binutil.ReadUint16(cr); err != nil {
		return nil, err
	}
	if h.Flags, err = binutil.ReadUint16(cr); err != nil {
		return nil, err
	}
	if h.SetID, err = binutil.ReadUint16(cr); err != nil {
		return nil, err
	}
	if h.ICabinet, err = binutil.ReadUint16(cr); err != nil {
		return nil, err
	}

	if h.VersionMajor != 1 || h.VersionMinor != 3 {
		return nil, fmt.Errorf("cabfile: unsupported cabinet version %d.%d: %w", h.VersionMajor, h.VersionMinor, ErrInvalidLayout)
	}

	if h.Flags&FlagReservePresent != 0 {
		if h.Reserve.Header, err = binutil.ReadUint16(cr); err != nil {
			return nil, err
		}
		folderReserve, err := binutil.ReadUint8(cr)
		if err != nil {
			return nil, err
		}
		h.Reserve.Folder = folderReserve
		dataReserve, err := binutil.ReadUint8(cr)
		if err != nil {
			return nil, err
		}
		h.Reserve.Data = dataReserve
		h.AbReserve = make([]byte, h.Reserve.Header)
		if _, err := cr.Read(h.AbReserve); err != nil {
			return nil, fmt.Errorf("cabfile: could not read header reserve bytes: %w", ErrIO)
		}
	}

	if h.Flags&FlagPrevCabinet != 0 {
		if h.CabinetPrev, _, err = binutil.ReadNulString(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read szCabinetPrev: %w", ErrIO)
		}
		if h.DiskPrev, _, err = binutil.ReadNulString(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read szDiskPrev: %w", ErrIO)
		}
	}
	if h.Flags&FlagNextCabinet != 0 {
		if h.CabinetNext, _, err = binutil.ReadNulString(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read szCabinetNext: %w", ErrIO)
		}
		if h.DiskNext, _, err = binutil.ReadNulString(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read szDiskNext: %w", ErrIO)
		}
	}
	return h, nil
}

func parseFolders(cr *countingReader, hdr *Header) ([]*Folder, error) {
	folders := make([]*Folder, 0, hdr.CFolders)
	for i := 0; i < int(hdr.CFolders); i++ {
		f := &Folder{ID: i}
		var err error
		if f.CoffCabStart, err = binutil.ReadUint32(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read folder %d coffCabStart: %w", i, err)
		}
		if f.CCFData, err = binutil.ReadUint16(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read folder %d cCFData: %w", i, err)
		}
		if f.TypeCompress, err = binutil.ReadUint16(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read folder %d typeCompress: %w", i, err)
		}
		if hdr.Flags&FlagReservePresent != 0 {
			f.AbReserve = make([]byte, hdr.Reserve.Folder)
			if _, err := cr.Read(f.AbReserve); err != nil {
				return nil, fmt.Errorf("cabfile: could not read folder %d reserve bytes: %w", i, ErrIO)
			}
		}
		folders = append(folders, f)
	}
	return folders, nil
}

func parseFiles(cr *countingReader, hdr *Header) ([]*File, error) {
	files := make([]*File, 0, hdr.CFiles)
	for i := 0; i < int(hdr.CFiles); i++ {
		f := &File{}
		var err error
		if f.CbFile, err = binutil.ReadUint32(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read file %d cbFile: %w", i, err)
		}
		if f.UoffFolderStart, err = binutil.ReadUint32(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read file %d uoffFolderStart: %w", i, err)
		}
		if f.IFolder, err = binutil.ReadUint16(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read file %d iFolder: %w", i, err)
		}
		if f.Date, err = binutil.ReadUint16(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read file %d date: %w", i, err)
		}
		if f.Time, err = binutil.ReadUint16(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read file %d time: %w", i, err)
		}
		if f.Attribs, err = binutil.ReadUint16(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read file %d attribs: %w", i, err)
		}
		if f.Name, _, err = binutil.ReadNulString(cr); err != nil {
			return nil, fmt.Errorf("cabfile: could not read file %d name: %w", i, ErrIO)
		}
		files = append(files, f)
	}
	return files, nil
}

func parseDataBlocks(cr *countingReader, hdr *Header, folders []*Folder) ([]*DataBlock, error) {
	var blocks []*DataBlock
	for _, folder := range folders {
		for i := 0; i < int(folder.CCFData); i++ {
			d := &DataBlock{}
			var err error
			if d.Checksum, err = binutil.ReadUint32(cr); err != nil {
				return nil, fmt.Errorf("cabfile: could not read data block checksum: %w", err)
			}
			if d.CbData, err = binutil.ReadUint16(cr); err != nil {
				return nil, fmt.Errorf("cabfile: could not read data block cbData: %w", err)
			}
			if d.CbUncomp, err = binutil.ReadUint16(cr); err != nil {
				return nil, fmt.Errorf("cabfile: could not read data block cbUncomp: %w", err)
			}
			if hdr.Flags&FlagReservePresent != 0 {
				d.AbReserve = make([]byte, hdr.Reserve.Data)
				if _, err := cr.Read(d.AbReserve); err != nil {
					return nil, fmt.Errorf("cabfile: could not read data block reserve bytes: %w", ErrIO)
				}
			}
			d.Payload = make([]byte, d.CbData)
			if _, err := cr.Read(d.Payload); err != nil {
				return nil, fmt.Errorf("cabfile: could not read data block payload: %w", ErrIO)
			}
			folder.dataBlocks = append(folder.dataBlocks, d)
			blocks = append(blocks, d)
		}
	}
	return blocks, nil
}
