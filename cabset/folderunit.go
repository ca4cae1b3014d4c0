// Package cabset streams folder units through a sequence of bounded CAB
// volumes (component D, the volume set builder) and wires the
// cross-volume continuation metadata the format requires.
package cabset

import "io"

// FileSource is one input file to pack: its basename (as it will be
// written to the CFFILE name field), its total logical size, and a
// reader positioned at its first byte. Opening the underlying byte
// source (a disk file, a network stream, an in-memory buffer) is the
// caller's responsibility. This module has no disk I/O wrapper of its
// own.
type FileSource struct {
	Name string
	Size int64
	r    io.Reader
}

// NewFileSource wraps an already-open reader as a FileSource.
func NewFileSource(name string, size int64, r io.Reader) FileSource {
	return FileSource{Name: name, Size: size, r: r}
}

func (fs FileSource) Read(p []byte) (int, error) { return fs.r.Read(p) }

// FolderUnit is one named group of input files to pack into a shared
// run of CAB folders.
type FolderUnit struct {
	Name  string
	Files []FileSource
}

// Equal reports whether u and other carry the same set of file
// basenames. This is test/debugging scaffolding carried over from the
// original implementation's CABFolderUnit.__eq__. It plays no part in
// Build's algorithm.
func (u FolderUnit) Equal(other FolderUnit) bool {
	set := make(map[string]struct{}, len(u.Files))
	for _, f := range u.Files {
		set[f.Name] = struct{}{}
	}
	otherSet := make(map[string]struct{}, len(other.Files))
	for _, f := range other.Files {
		if _, ok := set[f.Name]; !ok {
			return false
		}
		otherSet[f.Name] = struct{}{}
	}
	return len(set) == len(otherSet)
}
