package hashing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/photodedupe/photodedupe/internal/types"
)

// frameWidth/frameHeight are the dHash sampling grid dimensions: 9 columns
// by 8 rows of grayscale pixels, the same shape the teacher's image dHash
// uses (§4.2), piped raw out of ffmpeg as 72 bytes per frame.
const (
	frameWidth  = 9
	frameHeight = 8
	frameBytes  = frameWidth * frameHeight
)

// VideoSignature opens the container at path, reads its duration, samples
// DefaultVideoFrameCount (or frameCount) frames evenly across [5%, 95%] of
// that duration, and dHashes each one (§3, §4.2).
func VideoSignature(ctx context.Context, path string, frameCount int) (types.VideoSignature, error) {
	if err := ctx.Err(); err != nil {
		return types.VideoSignature{}, ErrCancelled
	}

	duration, err := probeDuration(ctx, path)
	if err != nil {
		return types.VideoSignature{}, &DecodeFailedError{Path: path, Cause: err}
	}
	if duration <= 0 {
		return types.VideoSignature{}, &DecodeFailedError{Path: path, Cause: fmt.Errorf("non-positive duration")}
	}

	hashes := make([]uint64, 0, frameCount)
	for _, frac := range samplingFractions(frameCount) {
		if err := ctx.Err(); err != nil {
			return types.VideoSignature{}, ErrCancelled
		}

		frame, err := extractGrayFrame(ctx, path, duration*frac)
		if err != nil {
			return types.VideoSignature{}, &DecodeFailedError{Path: path, Cause: err}
		}
		hashes = append(hashes, dHashFromGray(frame))
	}

	return types.VideoSignature{DurationSec: duration, FrameHashes: hashes}, nil
}

// samplingFractions returns k evenly-spaced fractions across [0.05, 0.95].
// For the spec default k=5 this is exactly {0.05, 0.275, 0.5, 0.725, 0.95}.
func samplingFractions(k int) []float64 {
	if k <= 1 {
		return []float64{0.5}
	}
	const start, end = 0.05, 0.95
	step := (end - start) / float64(k-1)
	out := make([]float64, k)
	for i := 0; i < k; i++ {
		out[i] = start + step*float64(i)
	}
	return out
}

// probeDuration shells out to ffprobe (via ffmpeg-go) and parses the
// container duration in seconds.
func probeDuration(ctx context.Context, path string) (float64, error) {
	raw, err := ffmpeg.ProbeContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("probe: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return 0, fmt.Errorf("parse probe output: %w", err)
	}

	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return duration, nil
}

// extractGrayFrame pulls a single raw grayscale frame at tsSec, downscaled
// to frameWidth x frameHeight, as frameBytes of row-major pixel data.
func extractGrayFrame(ctx context.Context, path string, tsSec float64) ([]byte, error) {
	var out bytes.Buffer

	err := ffmpeg.Input(path, ffmpeg.KwArgs{"ss": tsSec}).
		Output("pipe:", ffmpeg.KwArgs{
			"vframes": 1,
			"f":       "rawvideo",
			"pix_fmt": "gray",
			"vf":      fmt.Sprintf("scale=%d:%d", frameWidth, frameHeight),
		}).
		WithOutput(&out).
		WithContext(ctx).
		Run()
	if err != nil {
		return nil, fmt.Errorf("extract frame at %.2fs: %w", tsSec, err)
	}

	data := out.Bytes()
	if len(data) != frameBytes {
		return nil, fmt.Errorf("unexpected frame size: got %d bytes, want %d", len(data), frameBytes)
	}
	return data, nil
}

// dHashFromGray packs an 8x8 boolean comparison of adjacent pixels in a
// frameWidth x frameHeight grayscale buffer into a 64-bit difference hash,
// row-major, matching the image dHash bit order (§4.2).
func dHashFromGray(pixels []byte) uint64 {
	var hash uint64
	for row := 0; row < frameHeight; row++ {
		for col := 0; col < frameWidth-1; col++ {
			offset := row*frameWidth + col
			if pixels[offset] < pixels[offset+1] {
				hash |= 1 << uint(row*(frameWidth-1)+col)
			}
		}
	}
	return hash
}
