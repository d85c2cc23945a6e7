// Package quicklook fetches product thumbnails and renders them as a mosaic.
package quicklook

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/service"
)

// Fetcher downloads product quicklooks
type Fetcher struct {
	// NbRetries on transient http errors
	NbRetries int
}

func (f *Fetcher) retries() int {
	if f.NbRetries <= 0 {
		return 3
	}
	return f.NbRetries
}

// Fetch downloads and decodes the quicklook of the product
func (f *Fetcher) Fetch(ctx context.Context, product common.Product) (image.Image, error) {
	if product.Data.QuicklookURL == "" {
		return nil, fmt.Errorf("Fetch[%s]: no quicklook url", product.SourceID)
	}
	body, err := service.GetBodyRetry(product.Data.QuicklookURL, f.retries())
	if err != nil {
		return nil, fmt.Errorf("Fetch[%s]: %w", product.SourceID, err)
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Fetch[%s].Decode: %w", product.SourceID, err)
	}
	return img, nil
}

// FetchToFile downloads the quicklook of the product to localDir
func (f *Fetcher) FetchToFile(ctx context.Context, product common.Product, localDir string) (string, error) {
	if product.Data.QuicklookURL == "" {
		return "", fmt.Errorf("FetchToFile[%s]: no quicklook url", product.SourceID)
	}
	body, err := service.GetBodyRetry(product.Data.QuicklookURL, f.retries())
	if err != nil {
		return "", fmt.Errorf("FetchToFile[%s]: %w", product.SourceID, err)
	}
	localFile := service.ProductFilePath(localDir, product.SourceID, service.ExtensionJPG)
	if err := os.WriteFile(localFile, body, 0644); err != nil {
		return "", fmt.Errorf("FetchToFile[%s]: %w", product.SourceID, err)
	}
	return localFile, nil
}

// EncodePNG writes the image to w
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("EncodePNG: %w", err)
	}
	return nil
}
