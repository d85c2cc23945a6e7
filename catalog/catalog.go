package catalog

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"sort"

	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"

	"github.com/geosat-ops/sentineldownloader/catalog/entities"
	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/interface/catalog"
	"github.com/geosat-ops/sentineldownloader/service"
	"github.com/geosat-ops/sentineldownloader/service/geometry"
	"github.com/geosat-ops/sentineldownloader/service/log"
)

var aoiIDRegexp = regexp.MustCompile("^[a-zA-Z0-9-:_]+$")

// Catalog searches products through a chain of catalog providers.
// The first provider returning successfully wins.
type Catalog struct {
	Providers []catalog.ProductCatalog
}

func (c *Catalog) ValidateCriteria(criteria *entities.SearchCriteria) error {
	if criteria.AOIID != "" && !aoiIDRegexp.MatchString(criteria.AOIID) {
		return entities.ErrInvalidCriteria{Reason: "wrong format for AOI ID (must be chars, numbers and -:_): " + criteria.AOIID}
	}
	if err := criteria.Validate(); err != nil {
		return fmt.Errorf("ValidateCriteria.%w", err)
	}
	return nil
}

// DoProductsInventory lists the products for a given AOI, constellation and interval of time.
// Products are unique by SourceID and sorted by acquisition date, most recent first.
func (c *Catalog) DoProductsInventory(ctx context.Context, criteria entities.SearchCriteria) ([]*common.Product, error) {
	if err := c.ValidateCriteria(&criteria); err != nil {
		return nil, fmt.Errorf("DoProductsInventory.%w", err)
	}

	// geos AOI. A malformed geometry is a caller error, not a catalog failure.
	if criteria.AOI.Geometry == nil {
		return nil, entities.ErrInvalidCriteria{Reason: "missing AOI geometry"}
	}
	aoi, err := geos.FromWKT(wkt.MustEncode(criteria.AOI.Geometry))
	if err != nil {
		return nil, entities.ErrInvalidCriteria{Reason: fmt.Sprintf("unreadable AOI geometry: %v", err)}
	}
	if err := geometry.ValidateAOI(aoi); err != nil {
		return nil, entities.ErrInvalidCriteria{Reason: err.Error()}
	}

	log.Logger(ctx).Sugar().Debugf("Search products for AOI %s from %v to %v", criteria.AOIID, criteria.StartTime, criteria.EndTime)
	products, err := c.productsInventory(ctx, &criteria, *aoi)
	if err != nil {
		return nil, fmt.Errorf("DoProductsInventory.%w", err)
	}

	runtime.KeepAlive(aoi)

	return products, nil
}

func (c *Catalog) productsInventory(ctx context.Context, criteria *entities.SearchCriteria, aoi geos.Geometry) ([]*common.Product, error) {
	constellation := common.GetConstellationFromString(criteria.Constellation)

	var providers []catalog.ProductCatalog
	for _, provider := range c.Providers {
		if provider.Supports(constellation) {
			providers = append(providers, provider)
		}
	}
	if len(providers) == 0 {
		return nil, entities.ErrInvalidCriteria{Reason: "no catalog is configured for constellation " + criteria.Constellation}
	}

	var err, e error
	var products entities.Products
	for _, provider := range providers {
		products, e = provider.SearchProducts(ctx, criteria, aoi)
		if err = service.MergeErrors(false, err, e); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("productsInventory.%w", err)
	}

	results := uniqueProducts(products.Products)

	// Most recent acquisition first
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Data.Date.After(results[j].Data.Date)
	})

	log.Logger(ctx).Sugar().Debugf("%d products found", len(results))

	return results, nil
}

func uniqueProducts(products []*common.Product) []*common.Product {
	seen := map[string]bool{}
	results := make([]*common.Product, 0, len(products))
	for _, product := range products {
		if seen[product.SourceID] {
			continue
		}
		seen[product.SourceID] = true
		results = append(results, product)
	}
	return results
}
