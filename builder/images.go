package builder

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// probeImage decodes just the header of an embedded image to learn its
// pixel dimensions, which bound the hotspot regions laid over it. The
// historical files carry GIF and PNG; JPEG and BMP appear in
// third-party exports, so those decoders are registered too.
func probeImage(blob []byte) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(blob))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}
