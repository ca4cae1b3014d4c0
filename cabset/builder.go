package cabset

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/n3k/cabset/cabfile"
)

// Options configures a Builder. Use DefaultOptions or the With* option
// functions rather than constructing Options directly.
type Options struct {
	Capacity           int
	Reserve            cabfile.ReserveSizes
	OutputNameTemplate string
	SetID              uint16
	Clock              func() time.Time
	FolderNamer        func() string
}

// DefaultOptions returns the defaults: 1474×1024 bytes of payload per
// volume (a 1.44 MiB floppy) and "out_[x].cab" naming.
func DefaultOptions() Options {
	return Options{
		Capacity:           1474 * 1024,
		OutputNameTemplate: "out_[x].cab",
		Clock:              time.Now,
	}
}

// Option customizes Options.
type Option func(*Options)

// WithCapacity sets the payload-byte capacity of each volume.
func WithCapacity(n int) Option {
	return func(o *Options) { o.Capacity = n }
}

// WithReserve sets the reserve sizes every volume in the set carries.
func WithReserve(r cabfile.ReserveSizes) Option {
	return func(o *Options) { o.Reserve = r }
}

// WithOutputNameTemplate sets the volume filename template; "[x]" is
// replaced with the volume's 0-based index in the set.
func WithOutputNameTemplate(tmpl string) Option {
	return func(o *Options) { o.OutputNameTemplate = tmpl }
}

// WithSetID overrides the CFHEADER.setID value shared by every volume
// in the set (default 0, matching the original implementation which
// never assigns anything else).
func WithSetID(id uint16) Option {
	return func(o *Options) { o.SetID = id }
}

// WithClock overrides the wall clock stamped onto new file records.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) { o.Clock = clock }
}

// WithFolderNamer overrides the name generator used for folders the
// scattered-file workaround synthesizes.
func WithFolderNamer(namer func() string) Option {
	return func(o *Options) { o.FolderNamer = namer }
}

// Builder streams folder units through a sequence of cabfile.Volumes,
// opening a new volume whenever the current one runs out of capacity,
// and wires the cross-volume PREV_CABINET/NEXT_CABINET linkage the
// format requires (component D, grounded on the original
// implementation's CABSet since the teacher carries no writer at all).
type Builder struct {
	opts    Options
	volumes []*cabfile.Volume
}

// NewBuilder returns a Builder configured by opts, falling back to
// DefaultOptions for anything left unset.
func NewBuilder(opts ...Option) *Builder {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Builder{opts: o}
}

// outputName renders the volume filename for index i.
func (b *Builder) outputName(i int) string {
	return strings.Replace(b.opts.OutputNameTemplate, "[x]", strconv.Itoa(i), 1)
}

// createVolume appends and returns a brand new, empty volume, linking it
// to the volume immediately preceding it in the set (if any). The set's
// NEXT_CABINET/PREV_CABINET chain always follows volume creation order:
// there genuinely is a next cabinet the moment a new one is opened,
// whether or not any single file's payload happens to span the
// boundary. Only the per-file continuation sentinel is reserved for a
// genuine span (see markContinuation).
func (b *Builder) createVolume() (*cabfile.Volume, error) {
	idx := len(b.volumes)
	var volOpts []cabfile.VolumeOption
	if b.opts.Clock != nil {
		volOpts = append(volOpts, cabfile.WithClock(b.opts.Clock))
	}
	if b.opts.FolderNamer != nil {
		volOpts = append(volOpts, cabfile.WithFolderNamer(b.opts.FolderNamer))
	}
	v := cabfile.NewVolume(b.opts.Capacity, uint16(idx), b.opts.Reserve, volOpts...)
	v.Header().SetID = b.opts.SetID
	v.Filename = b.outputName(idx)
	if idx > 0 {
		if err := b.linkVolumes(b.volumes[idx-1], v); err != nil {
			return nil, err
		}
	}
	b.volumes = append(b.volumes, v)
	return v, nil
}

// linkVolumes sets the genuine cab-set NEXT_CABINET/PREV_CABINET linkage
// between two adjacent volumes, exactly once, when cur is created.
func (b *Builder) linkVolumes(prev, cur *cabfile.Volume) error {
	prev.Header().Flags |= cabfile.FlagNextCabinet
	prev.Header().CabinetNext = cur.Filename
	prev.Header().DiskNext = "continued"
	if err := prev.RecomputeOffsets(); err != nil {
		return err
	}
	cur.Header().Flags |= cabfile.FlagPrevCabinet
	cur.Header().CabinetPrev = prev.Filename
	cur.Header().DiskPrev = "previous"
	return cur.RecomputeOffsets()
}

// volumeWithSpace returns the first existing volume with room left,
// creating a new one only if none qualifies.
func (b *Builder) volumeWithSpace() (*cabfile.Volume, error) {
	for _, v := range b.volumes {
		if v.Remaining() > 0 {
			return v, nil
		}
	}
	return b.createVolume()
}

// Build packs every file in units into a sequence of volumes and
// returns them in creation order. The caller is responsible for
// serializing each returned volume (cabfile.Volume.WriteTo) to the
// name recorded in its Filename field.
func (b *Builder) Build(units []FolderUnit) ([]*cabfile.Volume, error) {
	for _, unit := range units {
		for _, src := range unit.Files {
			if err := b.addFileSource(unit.Name, src); err != nil {
				return nil, err
			}
		}
	}
	return b.volumes, nil
}

func (b *Builder) addFileSource(folderName string, src FileSource) error {
	remaining := src.Size
	var prevVol *cabfile.Volume
	first := true

	for first || remaining > 0 {
		v, err := b.volumeWithSpace()
		if err != nil {
			return err
		}

		want := int64(v.Remaining())
		if want > remaining {
			want = remaining
		}
		chunk := make([]byte, want)
		n, err := io.ReadFull(src, chunk)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return fmt.Errorf("cabset: reading %q: %w", src.Name, err)
		}
		chunk = chunk[:n]

		_, addErr := v.AddFile(folderName, src.Name, uint32(src.Size), chunk)
		if errors.Is(addErr, cabfile.ErrCapacityExceeded) {
			v, err = b.createVolume()
			if err != nil {
				return err
			}
			_, addErr = v.AddFile(folderName, src.Name, uint32(src.Size), chunk)
			if errors.Is(addErr, cabfile.ErrCapacityExceeded) {
				return fmt.Errorf("cabset: %q (%d bytes) does not fit a fresh volume of capacity %d: %w", src.Name, len(chunk), b.opts.Capacity, addErr)
			}
		}
		if addErr != nil {
			return addErr
		}

		if !first && prevVol != v {
			if err := markContinuation(prevVol, v, src.Name); err != nil {
				return err
			}
		}
		first = false
		prevVol = v
		remaining -= int64(n)
	}
	return nil
}

// markContinuation records that src's payload crossed from prev into
// cur: it ORs the matching continuation sentinel into the spanning
// file record on both sides. The set-level NEXT_CABINET/PREV_CABINET
// linkage is already in place by the time this runs (set once, when
// cur was created by createVolume); this only marks the one file whose
// payload actually spans the boundary, never anything else in either
// volume (Open Question (a): fixed without losing navigability).
func markContinuation(prev, cur *cabfile.Volume, fileName string) error {
	markFile(prev, fileName, cabfile.FolderContinuedToNext)
	if err := prev.RecomputeOffsets(); err != nil {
		return err
	}
	markFile(cur, fileName, cabfile.FolderContinuedFromPrev)
	return cur.RecomputeOffsets()
}

// markFile ORs sentinel into the most recently added file record named
// name across all of vol's folders.
func markFile(vol *cabfile.Volume, name string, sentinel uint16) {
	var target *cabfile.File
	for _, folder := range vol.Folders() {
		for _, f := range folder.Files() {
			if f.Name == name {
				target = f
			}
		}
	}
	if target != nil {
		target.IFolder = cabfile.OrSentinel(target.IFolder, sentinel)
	}
}
