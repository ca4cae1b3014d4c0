package cabfile

import "errors"

// Sentinel errors. The conditions listed below are returned as, or
// wrapped with fmt.Errorf("...: %w", ...) around, one of these so
// callers can use errors.Is to distinguish recoverable conditions
// (ErrCapacityExceeded) from fatal ones. Failures of the underlying
// reader while decoding integer fields, and all writer failures, are
// returned without a sentinel.
var (
	// ErrInvalidMagic is returned when a cabinet's first four bytes are
	// not "MSCF".
	ErrInvalidMagic = errors.New("cabfile: invalid cabinet signature")

	// ErrCapacityExceeded is returned by Volume.AddFile when the
	// presented chunk does not fit the volume's remaining capacity.
	ErrCapacityExceeded = errors.New("cabfile: volume capacity exceeded")

	// ErrOverflow is returned when a computed field does not fit its
	// on-disk width (more than 65535 folders or files, or a total
	// cabinet size beyond 4 GiB).
	ErrOverflow = errors.New("cabfile: field overflows its on-disk width")

	// ErrInvalidLayout is returned by the reader when a declared count
	// or offset does not match what was actually observed in the
	// stream.
	ErrInvalidLayout = errors.New("cabfile: cabinet layout is inconsistent")

	// ErrIO is wrapped by the reader when reading the signature, a
	// reserve area, a NUL-terminated string, or a data-block payload
	// fails.
	ErrIO = errors.New("cabfile: underlying I/O failure")
)
