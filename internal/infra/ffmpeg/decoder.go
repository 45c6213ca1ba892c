package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	"github.com/fiapx/fiapx-analysis-service/internal/domain/port"
	"go.uber.org/zap"
)

// Decoder gives random frame access to video containers through the ffprobe
// and ffmpeg binaries. Every Frame call runs its own ffmpeg process that seeks
// to the frame's timestamp, so readers opened by concurrent analyses share
// nothing.
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

func NewDecoder(ffmpegPath, ffprobePath string, logger *zap.Logger) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Decoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

func (d *Decoder) Open(ctx context.Context, videoPath string) (port.VideoReader, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidMedia, err)
	}

	info, err := d.inspect(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("video opened",
		zap.String("path", videoPath),
		zap.Int("frame_count", info.frames),
		zap.Float64("frame_rate", info.fps),
	)
	return &videoReader{decoder: d, path: videoPath, frames: info.frames, fps: info.fps}, nil
}

type streamInfo struct {
	frames int
	fps    float64
}

// inspect decodes the first video stream once to count its frames. Containers
// that cannot report a count yield zero frames; an unknown rate yields zero fps.
func (d *Decoder) inspect(ctx context.Context, videoPath string) (streamInfo, error) {
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=nb_read_frames,avg_frame_rate",
		"-of", "default=noprint_wrappers=1",
		videoPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return streamInfo{}, runError(ctx, "ffprobe", err, &stderr, entity.ErrInvalidMedia)
	}

	var info streamInfo
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "nb_read_frames":
			if value == "" || value == "N/A" {
				continue
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return streamInfo{}, fmt.Errorf("%w: parse frame count %q: %v", entity.ErrInvalidMedia, value, err)
			}
			info.frames = n
		case "avg_frame_rate":
			info.fps = parseRate(value)
		}
	}
	return info, nil
}

// parseRate reads ffprobe's "num/den" rational. 0/0 and N/A mean unknown.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return 0
		}
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	m, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || n <= 0 || m <= 0 {
		return 0
	}
	return n / m
}

// seekArgs positions ffmpeg on frame index. With a known rate the input is
// seeked to half a frame before the frame's timestamp, so accurate seeking
// lands on it without decoding from the start; otherwise frames are counted
// from the start.
func seekArgs(videoPath string, index int, fps float64) []string {
	if fps > 0 {
		ts := (float64(index) - 0.5) / fps
		if ts < 0 {
			ts = 0
		}
		return []string{"-ss", strconv.FormatFloat(ts, 'f', 6, 64), "-i", videoPath}
	}
	return []string{"-i", videoPath, "-vf", fmt.Sprintf(`select=eq(n\,%d)`, index)}
}

func (d *Decoder) decodeFrame(ctx context.Context, videoPath string, index int, fps float64) (image.Image, error) {
	args := append([]string{"-v", "error"}, seekArgs(videoPath, index, fps)...)
	args = append(args,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, runError(ctx, "ffmpeg", err, &stderr, entity.ErrDecode)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no frame at index %d", entity.ErrDecode, index)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d: %v", entity.ErrDecode, index, err)
	}
	return img, nil
}

// runError classifies a failed ffmpeg or ffprobe run. Only a process that ran
// and exited non-zero blames the media (kind). Cancellation and a binary that
// could not be started are returned untagged so the analysis is retried.
func runError(ctx context.Context, tool string, err error, stderr *bytes.Buffer, kind error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("run %s: %w", tool, err)
	}
	return fmt.Errorf("%w: %s: %v, output: %s", kind, tool, err, strings.TrimSpace(stderr.String()))
}

type videoReader struct {
	decoder *Decoder
	path    string
	frames  int
	fps     float64
}

func (r *videoReader) FrameCount() int {
	return r.frames
}

func (r *videoReader) Frame(ctx context.Context, index int) (image.Image, error) {
	if index < 0 || index >= r.frames {
		return nil, fmt.Errorf("%w: frame %d out of range [0,%d)", entity.ErrDecode, index, r.frames)
	}
	return r.decoder.decodeFrame(ctx, r.path, index, r.fps)
}

func (r *videoReader) Close() error {
	return nil
}
