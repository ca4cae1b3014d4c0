package extract

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/n3k/cabset/cabfile"
	"github.com/n3k/cabset/cabset"
)

func fixedClock() func() time.Time {
	t := time.Date(2022, time.June, 7, 8, 9, 10, 0, time.UTC)
	return func() time.Time { return t }
}

// build packs units into volumes, serializes each with name vol.Filename,
// and returns the in-memory volume map plus the first volume's parsed form.
func build(t *testing.T, capacity int, units []cabset.FolderUnit) (*cabfile.ParsedCabinet, map[string][]byte) {
	t.Helper()
	b := cabset.NewBuilder(cabset.WithCapacity(capacity), cabset.WithClock(fixedClock()))
	volumes, err := b.Build(units)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	disk := make(map[string][]byte, len(volumes))
	for _, v := range volumes {
		var buf bytes.Buffer
		if _, err := v.WriteTo(&buf); err != nil {
			t.Fatalf("WriteTo: %v", err)
		}
		disk[v.Filename] = buf.Bytes()
	}
	first, err := cabfile.ReadVolume(bytes.NewReader(disk[volumes[0].Filename]))
	if err != nil {
		t.Fatalf("ReadVolume(first): %v", err)
	}
	return first, disk
}

func opener(disk map[string][]byte) Opener {
	return func(name string) (io.Reader, error) {
		data, ok := disk[name]
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		return bytes.NewReader(data), nil
	}
}

func TestExtractSingleVolumeRoundTrip(t *testing.T) {
	units := []cabset.FolderUnit{{
		Name: "data",
		Files: []cabset.FileSource{
			cabset.NewFileSource("one.bin", 1, bytes.NewReader([]byte("A"))),
			cabset.NewFileSource("two.bin", 1, bytes.NewReader([]byte("B"))),
		},
	}}
	first, disk := build(t, 1024, units)

	result, err := Extract(first, opener(disk))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("len(result.Files) = %d, want 2", len(result.Files))
	}
	if result.Files[0].Name != "one.bin" || string(result.Files[0].Data) != "A" {
		t.Errorf("file 0 = %+v", result.Files[0])
	}
	if result.Files[1].Name != "two.bin" || string(result.Files[1].Data) != "B" {
		t.Errorf("file 1 = %+v", result.Files[1])
	}
	hashes := result.Hashes()
	if len(hashes) != 2 || hashes["one.bin"] == "" {
		t.Errorf("Hashes() = %v", hashes)
	}
}

func TestExtractCrossVolumeRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xCD}, 1500)
	units := []cabset.FolderUnit{{
		Name:  "data",
		Files: []cabset.FileSource{cabset.NewFileSource("big.bin", int64(len(payload)), bytes.NewReader(payload))},
	}}
	first, disk := build(t, 1000, units)

	result, err := Extract(first, opener(disk))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Files) != 1 {
		t.Fatalf("len(result.Files) = %d, want 1", len(result.Files))
	}
	if !bytes.Equal(result.Files[0].Data, payload) {
		t.Errorf("recovered %d bytes, want %d bytes matching original", len(result.Files[0].Data), len(payload))
	}
}

func TestExtractThreeVolumeSpan(t *testing.T) {
	payload := bytes.Repeat([]byte{0xEF}, 250)
	units := []cabset.FolderUnit{{
		Name:  "data",
		Files: []cabset.FileSource{cabset.NewFileSource("span.bin", int64(len(payload)), bytes.NewReader(payload))},
	}}
	first, disk := build(t, 100, units)

	result, err := Extract(first, opener(disk))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Files) != 1 || !bytes.Equal(result.Files[0].Data, payload) {
		t.Fatalf("recovered file mismatch: got %d bytes, want %d", len(result.Files[0].Data), len(payload))
	}
}

// A file that exactly fills a volume, followed by an unrelated file that
// starts a fresh volume, must still round-trip: the set is navigable
// even though no single file's payload spans the boundary.
func TestExtractBoundaryCoincidence(t *testing.T) {
	fits := bytes.Repeat([]byte{1}, 900)
	fresh := bytes.Repeat([]byte{2}, 50)
	units := []cabset.FolderUnit{{
		Name: "data",
		Files: []cabset.FileSource{
			cabset.NewFileSource("fits.bin", int64(len(fits)), bytes.NewReader(fits)),
			cabset.NewFileSource("fresh.bin", int64(len(fresh)), bytes.NewReader(fresh)),
		},
	}}
	first, disk := build(t, 900, units)

	result, err := Extract(first, opener(disk))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("len(result.Files) = %d, want 2 (fresh.bin must not be dropped)", len(result.Files))
	}
	if result.Files[0].Name != "fits.bin" || !bytes.Equal(result.Files[0].Data, fits) {
		t.Errorf("file 0 = %q (%d bytes), want fits.bin (%d bytes)", result.Files[0].Name, len(result.Files[0].Data), len(fits))
	}
	if result.Files[1].Name != "fresh.bin" || !bytes.Equal(result.Files[1].Data, fresh) {
		t.Errorf("file 1 = %q (%d bytes), want fresh.bin (%d bytes)", result.Files[1].Name, len(result.Files[1].Data), len(fresh))
	}
}

func TestExtractRejectsNonFirstVolume(t *testing.T) {
	units := []cabset.FolderUnit{{
		Name:  "data",
		Files: []cabset.FileSource{cabset.NewFileSource("a.bin", 1, bytes.NewReader([]byte("A")))},
	}}
	_, disk := build(t, 1024, units)
	for name, data := range disk {
		parsed, err := cabfile.ReadVolume(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("ReadVolume(%s): %v", name, err)
		}
		parsed.CabHeader().ICabinet = 1
		if _, err := Extract(parsed, opener(disk)); err == nil {
			t.Error("Extract accepted a cabinet with iCabinet != 0")
		}
	}
}
