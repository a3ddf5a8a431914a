package render

import "codeberg.org/mutker/ecoguard/internal/errors"

const (
	ErrInvalidRate = errors.ErrInvalidRate
	ErrNoRenderer  = errors.ErrorCode("render_missing_renderer")
)

func init() {
	errors.RegisterMessage(ErrNoRenderer, "Render trigger needs a frame source and a renderer")
}
