package provider

import (
	"context"

	"github.com/geosat-ops/sentineldownloader/common"
)

// ImageProvider is the interface of an image download service
type ImageProvider interface {
	// Download a product to the given localDir
	// product.SourceID is for example S1A_IW_SLC__1SDV_20190103T170131_20190103T170159_025316_02CD10_519D
	// localDir is the directory where the product will be stored
	Download(ctx context.Context, product common.Product, localDir string) error

	// Name of the provider
	Name() string
}
