package workspace

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/Imageomics/phenopype/internal/logging"
)

// defaultFiletypes are the image extensions accepted for session input.
var defaultFiletypes = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif"}

// IngestMode controls how a source image enters a session directory.
type IngestMode string

const (
	IngestCopy IngestMode = "copy" // verbatim copy of the source file
	IngestMod  IngestMode = "mod"  // re-encoded (and possibly resized) version
	IngestLink IngestMode = "link" // reference only, source stays in place
)

// LoadImage decodes an image file into a 3-channel buffer. The format is
// sniffed by the stdlib registry (png/jpeg/gif).
func LoadImage(path string) (*Buffer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	known := false
	for _, ft := range defaultFiletypes {
		if ext == ft {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("workspace: invalid file extension %q: %s", ext, filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("workspace: open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("workspace: decode image %q: %w", filepath.Base(path), err)
	}
	return FromImage(img), nil
}

// ResolveIngest applies the documented precedence between an explicit mode
// and a resize factor: a factor other than 1 forces "mod", because resized
// pixels cannot be represented by a copy or a link. The forced switch is
// logged, not silent.
func ResolveIngest(mode IngestMode, resizeFactor float64) IngestMode {
	if resizeFactor > 0 && resizeFactor != 1 && mode != IngestMod {
		logging.New("workspace").Info("resize factor set, switching ingest mode",
			"requested", string(mode), "effective", string(IngestMod), "resize_factor", resizeFactor)
		return IngestMod
	}
	return mode
}

// LoadForSession loads the session image honoring mode and resize factor.
// Resize wins over a conflicting mode (see ResolveIngest).
func LoadForSession(path string, mode IngestMode, resizeFactor float64) (*Buffer, error) {
	buf, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	if ResolveIngest(mode, resizeFactor) == IngestMod && resizeFactor > 0 && resizeFactor != 1 {
		buf = buf.Resize(resizeFactor)
	}
	return buf, nil
}
