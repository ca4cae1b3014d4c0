// Package extract reassembles the logical files packed across a cab
// set back into whole byte streams (component F), undoing both kinds
// of cross-volume splitting: a file whose payload straddles a volume
// boundary, and a single CFDATA block shared between the tail of one
// file and the head of the next.
package extract

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/n3k/cabset/cabfile"
)

// ErrNotFirstVolume is returned by Extract when the supplied cabinet's
// iCabinet field is not 0.
var ErrNotFirstVolume = errors.New("extract: cabinet is not the first volume of its set")

// ErrInvalidChain is returned when a file record claims to continue
// from a previous volume but no file is open to continue.
var ErrInvalidChain = errors.New("extract: file continues from previous volume with no open file")

// Opener opens the next volume in a set by the filename recorded in
// the previous volume's szCabinetNext field. The caller decides what
// "opening" means (a file on disk, a fetch from elsewhere); this
// package has no I/O wrapper of its own.
type Opener func(name string) (io.Reader, error)

// File is one logical file recovered from a cab set, with its
// continuation fragments already reassembled.
type File struct {
	Name string
	Data []byte
}

// Result is the full set of files recovered from one Extract call.
type Result struct {
	Files []File
}

// Hashes returns the MD5 digest of every recovered file, keyed by
// name. This is supplemental convenience carried over from the
// original implementation's get_hashes_of_files, not part of the core
// extraction algorithm.
func (r Result) Hashes() map[string]string {
	out := make(map[string]string, len(r.Files))
	for _, f := range r.Files {
		sum := md5.Sum(f.Data)
		out[f.Name] = hex.EncodeToString(sum[:])
	}
	return out
}

// blockCursor walks one volume's data blocks, splicing in a synthetic
// leftover block when a CFDATA block turns out to be shared between
// two CFFILE records.
type blockCursor struct {
	blocks []*cabfile.DataBlock
	idx    int
}

// readPrimitive reads data blocks until it has accumulated at least
// want bytes (tracked in runningLen, which persists across files and
// volumes exactly as long as a logical file's payload remains open),
// truncating and re-queuing any excess as a synthetic block for the
// next file to consume.
func readPrimitive(cur *blockCursor, runningLen *int, want uint32) []byte {
	var data []byte
	for *runningLen < int(want) && cur.idx < len(cur.blocks) {
		blk := cur.blocks[cur.idx]
		*runningLen += int(blk.CbUncomp)
		data = append(data, blk.Payload...)
		cur.idx++
	}
	if *runningLen > int(want) {
		diff := *runningLen - int(want)
		split := len(data) - diff
		real := data[:split]
		leftover := data[split:]
		synthetic := &cabfile.DataBlock{
			CbData:   uint16(len(leftover)),
			CbUncomp: uint16(len(leftover)),
			Payload:  leftover,
		}
		rest := append([]*cabfile.DataBlock{synthetic}, cur.blocks[cur.idx:]...)
		cur.blocks = append(cur.blocks[:cur.idx], rest...)
		return real
	}
	return data
}

func scattered(iFolder uint16) (fromPrev, toNext bool) {
	fromPrev = iFolder&cabfile.FolderContinuedFromPrev == cabfile.FolderContinuedFromPrev
	toNext = iFolder&cabfile.FolderContinuedToNext == cabfile.FolderContinuedToNext
	return
}

// Extract walks first and every volume chained after it via
// szCabinetNext (resolved through open), and returns every logical
// file fully reassembled. first must be the set's initial volume
// (iCabinet == 0).
func Extract(first *cabfile.ParsedCabinet, open Opener) (*Result, error) {
	if first.CabHeader().ICabinet != 0 {
		return nil, ErrNotFirstVolume
	}

	volumes := []*cabfile.ParsedCabinet{first}
	cur := first
	for cur.CabHeader().Flags&cabfile.FlagNextCabinet != 0 {
		r, err := open(cur.CabHeader().CabinetNext)
		if err != nil {
			return nil, fmt.Errorf("extract: opening next volume %q: %w", cur.CabHeader().CabinetNext, err)
		}
		next, err := cabfile.ReadVolume(r)
		if err != nil {
			return nil, fmt.Errorf("extract: reading volume %q: %w", cur.CabHeader().CabinetNext, err)
		}
		volumes = append(volumes, next)
		cur = next
	}

	var result Result
	runningLen := 0

	for _, vol := range volumes {
		blockCur := &blockCursor{blocks: vol.CabDataBlocks()}

		for _, file := range vol.CabFiles() {
			fromPrev, toNext := scattered(file.IFolder)

			if fromPrev || toNext {
				if fromPrev {
					data := readPrimitive(blockCur, &runningLen, file.CbFile)
					if len(result.Files) == 0 {
						return nil, fmt.Errorf("extract: %q: %w", file.Name, ErrInvalidChain)
					}
					last := &result.Files[len(result.Files)-1]
					last.Data = append(last.Data, data...)
				}
				if toNext && blockCur.idx < len(blockCur.blocks) {
					// A fresh file starting in this volume that will
					// continue into the next one.
					data := readPrimitive(blockCur, &runningLen, file.CbFile)
					result.Files = append(result.Files, File{Name: file.Name, Data: data})
				}
			} else {
				data := readPrimitive(blockCur, &runningLen, file.CbFile)
				result.Files = append(result.Files, File{Name: file.Name, Data: data})
			}

			if runningLen >= int(file.CbFile) {
				runningLen = 0
			}
		}
	}

	return &result, nil
}
