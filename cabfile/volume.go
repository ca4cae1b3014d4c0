package cabfile

import (
	"fmt"
	"io"
	"time"

	"github.com/n3k/cabset/internal/binutil"
)

// VolumeOption configures optional behavior of a Volume at construction.
type VolumeOption func(*Volume)

// WithClock overrides the wall clock used to stamp new file records.
// Defaults to time.Now; inject a fixed clock for deterministic tests.
func WithClock(clock func() time.Time) VolumeOption {
	return func(v *Volume) { v.clock = clock }
}

// WithFolderNamer overrides the name generator used for the synthetic
// folders the scattered-file workaround creates (§4.C). The generated
// name is never serialized to disk (only the folder's numeric index
// is), so its only visible effect is in debugging output. Defaults to
// a deterministic per-volume counter.
func WithFolderNamer(namer func() string) VolumeOption {
	return func(v *Volume) { v.namer = namer }
}

// Volume owns one CAB volume's header, folder, file, and data-block
// records, and enforces its capacity (component C).
type Volume struct {
	hdr      *Header
	folders  []*Folder
	capacity int

	payloadBytes int // sum of data-block payload bytes only; see Remaining.
	byName       map[string]*Folder
	nextFolderID int
	anonCount    int

	clock func() time.Time
	namer func() string

	// Filename is this volume's cab filename (e.g. "out_0.cab"),
	// assigned by the caller that names it (cabset.Builder); it is not
	// part of the on-disk layout for this volume itself, only for
	// other volumes' linkage strings that reference it.
	Filename string
}

// NewVolume returns an empty volume with the given payload capacity,
// 0-based index within its eventual set, and optional reserve sizes. If
// any reserve size is non-zero, FlagReservePresent is set on the header
// at construction (§4.C).
func NewVolume(capacity int, indexInSet uint16, reserve ReserveSizes, opts ...VolumeOption) *Volume {
	v := &Volume{
		hdr:      NewHeader(0, indexInSet, reserve),
		capacity: capacity,
		byName:   make(map[string]*Folder),
		clock:    time.Now,
	}
	v.namer = func() string {
		v.anonCount++
		return fmt.Sprintf("scattered-%d-%d", indexInSet, v.anonCount)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Header returns the volume's header for direct inspection/mutation by
// callers that wire cross-volume linkage (cabset.Builder).
func (v *Volume) Header() *Header { return v.hdr }

// Folders returns the volume's folders in creation order.
func (v *Volume) Folders() []*Folder { return v.folders }

// Remaining returns capacity minus the payload bytes already accepted.
// Per spec design notes (§9(b)), this counts only data-block payload
// bytes, not per-file/per-folder serialization overhead, preserved
// from the original implementation for write-parity even though it can
// occasionally force one extra volume when overhead is large.
func (v *Volume) Remaining() int {
	return v.capacity - v.payloadBytes
}

// findFolder returns the folder currently routed for name, or nil.
func (v *Volume) findFolder(name string) *Folder {
	return v.byName[name]
}

// selectFolder implements the folder-selection rule of §4.C: route
// name to an existing folder unless that folder's most recent file
// record continues from the previous volume, in which case a fresh
// folder is synthesized and name is re-routed to it.
func (v *Volume) selectFolder(name string) *Folder {
	folder := v.byName[name]
	if folder == nil {
		folder = NewFolder(v.hdr, v.nextFolderID, name)
		v.nextFolderID++
		v.folders = append(v.folders, folder)
		v.hdr.CFolders++
		v.byName[name] = folder
		return folder
	}
	files := folder.Files()
	if len(files) > 0 && files[len(files)-1].IFolder&FolderContinuedFromPrev == FolderContinuedFromPrev {
		fresh := NewFolder(v.hdr, v.nextFolderID, v.namer())
		v.nextFolderID++
		v.folders = append(v.folders, fresh)
		v.hdr.CFolders++
		v.byName[name] = fresh
		return fresh
	}
	return folder
}

// AddFile adds one file record named filename (without its NUL
// terminator, which File.WriteTo appends on serialization) carrying payload bytes of a
// logical file whose total size is totalSize, to the folder named
// folderName (created if absent). Payload is split into data blocks of
// at most MaxBlockPayload bytes. Returns ErrCapacityExceeded if payload
// does not fit the volume's remaining capacity; the caller (typically
// cabset.Builder) is responsible for retrying against a new volume.
func (v *Volume) AddFile(folderName, filename string, totalSize uint32, payload []byte) (*File, error) {
	if v.payloadBytes+len(payload) > v.capacity {
		return nil, ErrCapacityExceeded
	}

	folder := v.selectFolder(folderName)
	file := NewFile(uint16(folder.ID), filename, totalSize, v.clock())
	folder.AddFile(file)
	v.hdr.CFiles++

	for off := 0; off < len(payload); off += MaxBlockPayload {
		end := off + MaxBlockPayload
		if end > len(payload) {
			end = len(payload)
		}
		block, err := NewDataBlock(v.hdr, payload[off:end])
		if err != nil {
			return nil, err
		}
		folder.AddDataBlock(block)
	}
	v.payloadBytes += len(payload)

	if err := v.recomputeOffsets(); err != nil {
		return nil, err
	}
	return file, nil
}

// RecomputeOffsets re-derives the offset/length fields covered by
// invariants 4-7. Callers that mutate a volume's header directly after
// construction (cabset.Builder, wiring cross-volume linkage strings)
// must call this afterward so CbCabinet/CoffFiles stay consistent.
func (v *Volume) RecomputeOffsets() error {
	return v.recomputeOffsets()
}

// recomputeOffsets enforces invariants 4-7 after every mutation.
func (v *Volume) recomputeOffsets() error {
	// Invariant 7: per-folder prefix sums of file sizes.
	for _, folder := range v.folders {
		var offset uint32
		for _, file := range folder.Files() {
			file.UoffFolderStart = offset
			offset += file.CbFile
		}
	}

	headerLen := v.hdr.Len()
	folderLenSum := 0
	fileLenSum := 0
	fileCount := 0
	for _, folder := range v.folders {
		folderLenSum += folder.Len()
		fileCount += len(folder.Files())
		for _, file := range folder.Files() {
			fileLenSum += file.Len()
		}
	}

	// Invariant 6: each folder's first data-block offset.
	dataStart := headerLen + folderLenSum + fileLenSum
	for i, folder := range v.folders {
		if i == 0 {
			folder.CoffCabStart = uint32(dataStart)
		} else {
			prev := v.folders[i-1]
			prevDataLen := 0
			for _, d := range prev.DataBlocks() {
				prevDataLen += d.Len()
			}
			folder.CoffCabStart = v.folders[i-1].CoffCabStart + uint32(prevDataLen)
		}
	}
	if _, err := binutil.PutUint32(uint64(dataStart)); err != nil {
		return fmt.Errorf("cabfile: coffCabStart overflow: %w", ErrOverflow)
	}

	// Invariant 5: CoffFiles.
	coffFiles := headerLen + folderLenSum
	if _, err := binutil.PutUint32(uint64(coffFiles)); err != nil {
		return fmt.Errorf("cabfile: coffFiles overflow: %w", ErrOverflow)
	}
	v.hdr.CoffFiles = uint32(coffFiles)

	// Invariant 4: CbCabinet, the full serialized length.
	dataLenSum := 0
	for _, folder := range v.folders {
		for _, d := range folder.DataBlocks() {
			dataLenSum += d.Len()
		}
	}
	total := headerLen + folderLenSum + fileLenSum + dataLenSum
	if _, err := binutil.PutUint32(uint64(total)); err != nil {
		return fmt.Errorf("cabfile: cbCabinet overflow: %w", ErrOverflow)
	}
	v.hdr.CbCabinet = uint32(total)

	// Counts are checked from the record lists, since the uint16 header
	// and folder counters wrap instead of exceeding 65535.
	if _, err := binutil.PutUint16(uint64(len(v.folders))); err != nil {
		return fmt.Errorf("cabfile: folder count overflow: %w", ErrOverflow)
	}
	if _, err := binutil.PutUint16(uint64(fileCount)); err != nil {
		return fmt.Errorf("cabfile: file count overflow: %w", ErrOverflow)
	}
	for _, folder := range v.folders {
		if _, err := binutil.PutUint16(uint64(len(folder.DataBlocks()))); err != nil {
			return fmt.Errorf("cabfile: folder data-block count overflow: %w", ErrOverflow)
		}
	}
	return nil
}

// Len returns the volume's total serialized length; equal to
// Header().CbCabinet once recomputeOffsets has run, recomputed here
// independently as a consistency cross-check for tests.
func (v *Volume) Len() int {
	n := v.hdr.Len()
	for _, folder := range v.folders {
		n += folder.Len()
		for _, file := range folder.Files() {
			n += file.Len()
		}
	}
	for _, folder := range v.folders {
		for _, d := range folder.DataBlocks() {
			n += d.Len()
		}
	}
	return n
}

// WriteTo serializes the whole volume: header, folders, files, then
// data blocks, in that order (the CAB on-disk layout).
func (v *Volume) WriteTo(w io.Writer) (int64, error) {
	var written int64
	n, err := v.hdr.WriteTo(w)
	written += n
	if err != nil {
		return written, err
	}
	for _, folder := range v.folders {
		n, err = folder.WriteTo(w)
		written += n
		if err != nil {
			return written, err
		}
	}
	for _, folder := range v.folders {
		for _, file := range folder.Files() {
			n, err = file.WriteTo(w)
			written += n
			if err != nil {
				return written, err
			}
		}
	}
	for _, folder := range v.folders {
		for _, d := range folder.DataBlocks() {
			n, err = d.WriteTo(w)
			written += n
			if err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// CabHeader implements Cabinet.
func (v *Volume) CabHeader() *Header { return v.hdr }

// CabFolders implements Cabinet.
func (v *Volume) CabFolders() []*Folder { return v.folders }

// CabFiles implements Cabinet.
func (v *Volume) CabFiles() []*File {
	var files []*File
	for _, folder := range v.folders {
		files = append(files, folder.Files()...)
	}
	return files
}

// CabDataBlocks implements Cabinet.
func (v *Volume) CabDataBlocks() []*DataBlock {
	var blocks []*DataBlock
	for _, folder := range v.folders {
		blocks = append(blocks, folder.DataBlocks()...)
	}
	return blocks
}
