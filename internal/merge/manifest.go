package merge

import (
	"encoding/json"
	"os"
)

// Manifest records how a merged image was produced so a build can be
// reproduced or inspected later. It is written next to the image.
type Manifest struct {
	Output    string            `json:"output"`
	Size      int64             `json:"size"`
	FlashMode string            `json:"flash_mode"`
	FlashFreq string            `json:"flash_freq"`
	FlashSize string            `json:"flash_size"`
	Segments  []ManifestSegment `json:"segments"`
}

// ManifestSegment is one placed segment as recorded in the manifest.
type ManifestSegment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Offset uint32 `json:"offset"`
	Size   int    `json:"size"`
}

// ManifestPath returns where the manifest for an image lives.
func ManifestPath(imagePath string) string {
	return imagePath + ".json"
}

func writeManifest(spec Spec, segments []Segment, size int64) error {
	manifest := Manifest{
		Output:    spec.OutputPath,
		Size:      size,
		FlashMode: spec.FlashMode,
		FlashFreq: spec.FlashFreq,
		FlashSize: spec.FlashSize,
	}
	for _, s := range segments {
		manifest.Segments = append(manifest.Segments, ManifestSegment{
			Name:   s.Name,
			Source: s.Path,
			Offset: s.Offset,
			Size:   len(s.Data),
		})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ManifestPath(spec.OutputPath), append(data, '\n'), 0o644)
}

// ReadManifest loads the manifest written alongside an image.
func ReadManifest(imagePath string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(imagePath))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
