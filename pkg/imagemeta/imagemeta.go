// Package imagemeta inspects an uploaded crop photo without analyzing its
// content: existence, detected MIME type and pixel dimensions.
package imagemeta

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrMissing  = errors.New("image not found")
	ErrNotImage = errors.New("file is not an image")
)

// Info describes an image file. Width and Height are zero for formats the
// decoder does not know (webp, heic), which is not an error.
type Info struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	MIME     string `json:"mime"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Bytes    int64  `json:"bytes"`
	Portrait bool   `json:"portrait,omitempty"`
}

// Hint is a one-line description for the LLM prompt.
func (i Info) Hint() string {
	if i.Width == 0 || i.Height == 0 {
		return fmt.Sprintf("%s photo (%s)", i.MIME, i.Name)
	}
	return fmt.Sprintf("%s photo %dx%d (%s)", i.MIME, i.Width, i.Height, i.Name)
}

// Inspect stats and sniffs the file at path.
func Inspect(path string) (Info, error) {
	if strings.TrimSpace(path) == "" {
		return Info{}, ErrMissing
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, ErrMissing
		}
		return Info{}, fmt.Errorf("stat image: %w", err)
	}
	if st.IsDir() {
		return Info{}, ErrMissing
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("detect image type: %w", err)
	}
	if !strings.HasPrefix(mt.String(), "image/") {
		return Info{}, fmt.Errorf("%w: %s", ErrNotImage, mt.String())
	}
	info := Info{Path: path, Name: filepath.Base(path), MIME: mt.String(), Bytes: st.Size()}

	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	if cfg, _, err := image.DecodeConfig(f); err == nil {
		info.Width, info.Height = cfg.Width, cfg.Height
		info.Portrait = cfg.Height > cfg.Width
	}
	return info, nil
}
