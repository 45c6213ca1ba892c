package analysis

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/fiapx/fiapx-analysis-service/internal/domain/entity"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageNet statistics the classifier was trained with. Changing them makes
// scores meaningless.
var (
	channelMean = [entity.TensorChannels]float32{0.485, 0.456, 0.406}
	channelStd  = [entity.TensorChannels]float32{0.229, 0.224, 0.225}
)

// DecodeImage interprets data as an image in any registered format.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: zero-byte input", entity.ErrDecode)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", entity.ErrDecode)
	}
	return img, nil
}

func DecodeImageFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", entity.ErrDecode, path, err)
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Normalize resizes img to the classifier geometry, converts it to RGB and
// standardizes each channel. Alpha is discarded, not composited: a translucent
// pixel contributes its straight colour. The result depends only on the source
// pixels.
func Normalize(img image.Image) *entity.Tensor {
	rgb := image.NewRGBA(image.Rect(0, 0, entity.TensorWidth, entity.TensorHeight))
	src := opaque(img)
	draw.BiLinear.Scale(rgb, rgb.Bounds(), src, src.Bounds(), draw.Src, nil)

	t := entity.NewTensor()
	for y := 0; y < entity.TensorHeight; y++ {
		for x := 0; x < entity.TensorWidth; x++ {
			off := rgb.PixOffset(x, y)
			for c := 0; c < entity.TensorChannels; c++ {
				v := float32(rgb.Pix[off+c]) / 255
				t.Set(c, y, x, (v-channelMean[c])/channelStd[c])
			}
		}
	}
	return t
}

// opaque copies img into straight (non-premultiplied) RGB with every alpha
// set to 255, so scaling never weights colour by transparency.
func opaque(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(out.Pix[y*out.Stride:y*out.Stride+4*b.Dx()], row[:4*b.Dx()])
		}
	} else {
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				out.SetNRGBA(x, y, c)
			}
		}
	}
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// NormalizeBytes decodes a raw image buffer and normalizes it.
func NormalizeBytes(data []byte) (*entity.Tensor, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return Normalize(img), nil
}
