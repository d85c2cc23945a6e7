package quicklook

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/service/log"
)

const (
	DefaultColumns  = 3
	DefaultTileSize = 256
)

var (
	placeholderFill   = color.RGBA{R: 48, G: 48, B: 48, A: 255}
	placeholderBorder = color.RGBA{R: 96, G: 96, B: 96, A: 255}
	gridBackground    = color.RGBA{R: 16, G: 16, B: 16, A: 255}
)

// Renderer composes quicklooks into a mosaic
type Renderer struct {
	Fetcher *Fetcher

	// TileSize is the side of a thumbnail cell in pixels (default DefaultTileSize)
	TileSize int
	// Concurrency is the number of simultaneous quicklook fetches (default 4)
	Concurrency int
}

func (r *Renderer) tileSize() int {
	if r.TileSize <= 0 {
		return DefaultTileSize
	}
	return r.TileSize
}

func (r *Renderer) concurrency() int {
	if r.Concurrency <= 0 {
		return 4
	}
	return r.Concurrency
}

// RenderGrid draws the quicklooks of the products as a row-major grid with the given
// number of columns. A quicklook that cannot be fetched is drawn as a placeholder tile.
// The grid has ceil(len(products)/columns) rows, the last row is padded with placeholders.
func (r *Renderer) RenderGrid(ctx context.Context, products []common.Product, columns int) (image.Image, error) {
	if columns <= 0 {
		columns = DefaultColumns
	}
	size := r.tileSize()
	rows := (len(products) + columns - 1) / columns

	dst := image.NewRGBA(image.Rect(0, 0, columns*size, rows*size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{gridBackground}, image.Point{}, draw.Src)

	// Fetch the quicklooks, best effort
	thumbs := make([]image.Image, len(products))
	wg := errgroup.Group{}
	wg.SetLimit(r.concurrency())
	for i, product := range products {
		i, product := i, product
		wg.Go(func() error {
			img, err := r.Fetcher.Fetch(ctx, product)
			if err != nil {
				log.Logger(ctx).Sugar().Warnf("RenderGrid: %v", err)
				return nil
			}
			thumbs[i] = img
			return nil
		})
	}
	wg.Wait()

	for cell := 0; cell < rows*columns; cell++ {
		x := (cell % columns) * size
		y := (cell / columns) * size
		cellRect := image.Rect(x, y, x+size, y+size)
		if cell < len(thumbs) && thumbs[cell] != nil {
			drawThumb(dst, cellRect, thumbs[cell])
		} else {
			drawPlaceholder(dst, cellRect)
		}
	}

	return dst, nil
}

// drawThumb scales src to fit rect, preserving the aspect ratio
func drawThumb(dst *image.RGBA, rect image.Rectangle, src image.Image) {
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		drawPlaceholder(dst, rect)
		return
	}
	w, h := rect.Dx(), rect.Dy()
	if sb.Dx()*h > sb.Dy()*w {
		h = sb.Dy() * w / sb.Dx()
	} else {
		w = sb.Dx() * h / sb.Dy()
	}
	fit := image.Rect(0, 0, w, h).Add(image.Point{
		X: rect.Min.X + (rect.Dx()-w)/2,
		Y: rect.Min.Y + (rect.Dy()-h)/2,
	})
	xdraw.ApproxBiLinear.Scale(dst, fit, src, sb, xdraw.Src, nil)
}

// drawPlaceholder fills rect with a neutral tile and a thin border
func drawPlaceholder(dst *image.RGBA, rect image.Rectangle) {
	draw.Draw(dst, rect, &image.Uniform{placeholderFill}, image.Point{}, draw.Src)
	border := &image.Uniform{placeholderBorder}
	draw.Draw(dst, image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+1), border, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(rect.Min.X, rect.Max.Y-1, rect.Max.X, rect.Max.Y), border, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+1, rect.Max.Y), border, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(rect.Max.X-1, rect.Min.Y, rect.Max.X, rect.Max.Y), border, image.Point{}, draw.Src)
}
