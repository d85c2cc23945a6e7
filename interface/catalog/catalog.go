package catalog

import (
	"context"

	"github.com/geosat-ops/sentineldownloader/catalog/entities"
	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/paulsmith/gogeos/geos"
)

// ProductCatalog is the interface of a remote product search service
type ProductCatalog interface {
	// SearchProducts returns the products of the catalog intersecting the aoi
	// and matching the criteria. An empty result is not an error.
	SearchProducts(ctx context.Context, criteria *entities.SearchCriteria, aoi geos.Geometry) (entities.Products, error)

	// Supports returns whether the catalog can search the given constellation
	Supports(c common.Constellation) bool

	// Name of the catalog
	Name() string
}
