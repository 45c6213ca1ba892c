package port

import (
	"context"
	"image"
)

// VideoDecoder opens a video container for random frame access.
type VideoDecoder interface {
	Open(ctx context.Context, path string) (VideoReader, error)
}

// VideoReader is owned by a single analysis and is not safe for concurrent use.
type VideoReader interface {
	// FrameCount is the number of frames the container reports. Zero or
	// negative means the container is unreadable or empty.
	FrameCount() int
	// Frame seeks to index and decodes that frame.
	Frame(ctx context.Context, index int) (image.Image, error)
	Close() error
}
