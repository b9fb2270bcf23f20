package hashing

import (
	"context"
	"fmt"
	stdimage "image"

	// Blank-imported so image.Decode recognizes every format the default
	// photo extension filter (§4.1) admits, except HEIC, which has no
	// suitable decoder in the example corpus - HEIC files fail decode and
	// surface as a non-fatal DecodeFailedError, same as any other corrupt
	// input.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/photodedupe/photodedupe/internal/types"
)

// ImageHashes decodes the image at path and computes one PerceptualHash per
// algorithm in types.Algorithms (dHash and pHash, §4.2). Width/height on the
// returned hashes reflect the source image's native dimensions, not any
// internal resize goimagehash performs while hashing.
func ImageHashes(ctx context.Context, path string) ([]types.PerceptualHash, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}

	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := stdimage.Decode(f)
	if err != nil {
		return nil, &DecodeFailedError{Path: path, Cause: err}
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		// Zero-size image: signature computation overflow (§7) - surface as
		// a decode failure so the caller records the file with no signature.
		return nil, &DecodeFailedError{Path: path, Cause: fmt.Errorf("zero-dimension image")}
	}

	now := computedAt()
	hashes := make([]types.PerceptualHash, 0, len(types.Algorithms))

	for _, algo := range types.Algorithms {
		if err := ctx.Err(); err != nil {
			return nil, ErrCancelled
		}

		var raw uint64
		switch algo {
		case types.AlgoDHash:
			h, err := goimagehash.DifferenceHash(img)
			if err != nil {
				return nil, &DecodeFailedError{Path: path, Cause: err}
			}
			raw = h.GetHash()
		case types.AlgoPHash:
			h, err := goimagehash.PerceptionHash(img)
			if err != nil {
				return nil, &DecodeFailedError{Path: path, Cause: err}
			}
			raw = h.GetHash()
		default:
			continue
		}

		hashes = append(hashes, types.PerceptualHash{
			Algorithm:  algo,
			Hash:       raw,
			Width:      width,
			Height:     height,
			ComputedAt: now,
		})
	}

	return hashes, nil
}

// ImageDimensions decodes only the image config (cheap, no pixel data) to
// recover width/height for FileRecord without paying for a full hash pass.
func ImageDimensions(path string) (width, height int, err error) {
	f, err := openFile(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()

	cfg, _, err := stdimage.DecodeConfig(f)
	if err != nil {
		return 0, 0, &DecodeFailedError{Path: path, Cause: err}
	}
	return cfg.Width, cfg.Height, nil
}
