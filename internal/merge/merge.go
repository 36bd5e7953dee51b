package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

// Segment is a named chunk of firmware placed at a fixed flash offset.
type Segment struct {
	Name   string
	Path   string
	Offset uint32
	Data   []byte
}

// End returns the first offset past the segment's data.
func (s Segment) End() uint32 {
	return s.Offset + uint32(len(s.Data))
}

// Spec describes one merge: the segments to place, the flash parameters
// to record, and where the result goes.
type Spec struct {
	Segments   []Segment
	FlashMode  string
	FlashFreq  string
	FlashSize  string
	OutputPath string

	// VerifyOffset is where the bootloader magic byte is expected.
	VerifyOffset uint32
	Magic        byte
}

// DefaultSpec builds the standard ESP32-P4 three-segment layout from a
// build directory, writing the merged image to outputPath.
func DefaultSpec(buildDir, outputPath string) Spec {
	return Spec{
		Segments: []Segment{
			{Name: "bootloader", Path: filepath.Join(buildDir, "bootloader.bin"), Offset: BootloaderOffset},
			{Name: "partitions", Path: filepath.Join(buildDir, "partitions.bin"), Offset: PartitionsOffset},
			{Name: "firmware", Path: filepath.Join(buildDir, "firmware.bin"), Offset: AppOffset},
		},
		FlashMode:    FlashMode,
		FlashFreq:    FlashFreq,
		FlashSize:    FlashSize,
		OutputPath:   outputPath,
		VerifyOffset: BootloaderOffset,
		Magic:        BootloaderMagic,
	}
}

// Result reports a completed merge.
type Result struct {
	Path        string
	Size        int64
	MagicOK     bool
	MagicActual byte
}

// ProgressCallback is called as segment bytes are copied into the image.
type ProgressCallback func(copied, total int)

// Merger performs the merge described by a Spec.
type Merger struct {
	progress ProgressCallback
}

// New creates a new Merger.
func New() *Merger {
	return &Merger{}
}

// SetProgressCallback sets the progress callback function.
func (m *Merger) SetProgressCallback(cb ProgressCallback) {
	m.progress = cb
}

func (m *Merger) reportProgress(copied, total int) {
	if m.progress != nil {
		m.progress(copied, total)
	}
}

// Merge loads all segments, validates the layout, composes the image and
// writes it atomically. No output file is left behind on any error path.
// The caller's spec is not modified.
func (m *Merger) Merge(spec Spec) (*Result, error) {
	segments := append([]Segment(nil), spec.Segments...)

	if err := loadSegments(segments); err != nil {
		return nil, err
	}
	if err := validateLayout(segments); err != nil {
		return nil, err
	}

	image := m.compose(segments)
	logrus.Debugf("composed %d bytes from %d segments", len(image), len(segments))

	if err := writeAtomic(spec.OutputPath, image); err != nil {
		return nil, &ComposeError{Stage: "write", Err: err}
	}

	if err := writeManifest(spec, segments, int64(len(image))); err != nil {
		os.Remove(spec.OutputPath)
		return nil, &ComposeError{Stage: "manifest", Err: err}
	}

	result := &Result{
		Path: spec.OutputPath,
		Size: int64(len(image)),
	}

	// Read the magic byte back from the written file. A mismatch is a
	// diagnostic, not a failure: the image is still written.
	actual, err := readByteAt(spec.OutputPath, int64(spec.VerifyOffset))
	if err != nil {
		os.Remove(ManifestPath(spec.OutputPath))
		os.Remove(spec.OutputPath)
		return nil, &ComposeError{Stage: "verify", Err: err}
	}
	result.MagicActual = actual
	result.MagicOK = actual == spec.Magic

	return result, nil
}

// loadSegments reads every segment file into memory. All missing files
// are collected so the error names each one.
func loadSegments(segments []Segment) error {
	var missing []string
	for i := range segments {
		if _, err := os.Stat(segments[i].Path); err != nil {
			missing = append(missing, segments[i].Name)
		}
	}
	if len(missing) > 0 {
		return &MissingSegmentError{Names: missing}
	}

	for i := range segments {
		data, err := os.ReadFile(segments[i].Path)
		if err != nil {
			return &ComposeError{Stage: "read", Err: err}
		}
		segments[i].Data = data
	}
	return nil
}

// validateLayout checks that every segment fits in the 32-bit address
// space, that segments are in ascending offset order and that no two
// flash ranges intersect.
func validateLayout(segments []Segment) error {
	// End() wraps on overflow, which would both corrupt the size
	// computation in compose and hide overlaps. Reject it up front.
	for _, s := range segments {
		if s.End() < s.Offset {
			return &RangeError{Name: s.Name, Offset: s.Offset, Length: len(s.Data)}
		}
	}

	if len(segments) < 2 {
		return nil
	}

	if !sort.SliceIsSorted(segments, func(i, j int) bool {
		return segments[i].Offset < segments[j].Offset
	}) {
		return fmt.Errorf("segments must be declared in ascending offset order")
	}

	for i := 1; i < len(segments); i++ {
		prev, cur := segments[i-1], segments[i]
		if cur.Offset < prev.End() {
			return &OverlapError{
				First:  prev.Name,
				Second: cur.Name,
				Offset: cur.Offset,
			}
		}
	}
	return nil
}

// compose places every segment at its offset in a padded buffer. Pure
// byte placement: segment data is never transformed.
func (m *Merger) compose(segments []Segment) []byte {
	var size uint32
	total := 0
	for _, s := range segments {
		if s.End() > size {
			size = s.End()
		}
		total += len(s.Data)
	}

	image := make([]byte, size)
	for i := range image {
		image[i] = PadByte
	}

	copied := 0
	for _, s := range segments {
		copy(image[s.Offset:], s.Data)
		copied += len(s.Data)
		m.reportProgress(copied, total)
	}
	return image
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename. The output directory is created if absent.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".merge-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func readByteAt(path string, offset int64) (byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return 0, err
	}
	return buf[0], nil
}
