package creodias

import (
	"context"
	"fmt"

	"github.com/paulsmith/gogeos/geos"

	"github.com/geosat-ops/sentineldownloader/catalog/entities"
	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/interface/catalog/opensearch"
)

const PageLimit = 1000

// Provider searches the Creodias resto catalog (OpenSearch dialect)
type Provider struct {
	BaseURL string // overrides the per-constellation default resto url
	Limit   int    // catalog page size, defaults to PageLimit
}

// Name implements catalog.ProductCatalog
func (p *Provider) Name() string {
	return "Creodias"
}

// Supports implements catalog.ProductCatalog
func (p *Provider) Supports(c common.Constellation) bool {
	switch c {
	case common.Sentinel1, common.Sentinel2:
		return true
	}
	return false
}

// SearchProducts implements catalog.ProductCatalog
func (p *Provider) SearchProducts(ctx context.Context, criteria *entities.SearchCriteria, aoi geos.Geometry) (entities.Products, error) {
	baseURL := p.BaseURL
	if baseURL == "" {
		switch common.GetConstellationFromString(criteria.Constellation) {
		case common.Sentinel1:
			baseURL = "https://datahub.creodias.eu/resto/api/collections/Sentinel1/search.json?"
		case common.Sentinel2:
			baseURL = "https://datahub.creodias.eu/resto/api/collections/Sentinel2/search.json?"
		default:
			return entities.Products{}, entities.ErrInvalidCriteria{Reason: "Creodias: constellation not supported: " + criteria.Constellation}
		}
	}

	query, err := opensearch.ConstructQuery(ctx, criteria, aoi)
	if err != nil {
		return entities.Products{}, fmt.Errorf("Creodias.SearchProducts.%w", err)
	}

	catalogLimit := p.Limit
	if catalogLimit == 0 {
		catalogLimit = PageLimit
	}
	limit := criteria.Limit
	if limit == 0 {
		limit = catalogLimit
	}
	hits, err := opensearch.Query(ctx, query, opensearch.Config{Provider: "Creodias", BaseUrl: baseURL}, criteria.Page, limit, catalogLimit)
	if err != nil {
		return entities.Products{}, fmt.Errorf("Creodias.SearchProducts.%w", err)
	}

	products, err := opensearch.Parse(criteria, hits)
	if err != nil {
		return entities.Products{}, fmt.Errorf("Creodias.SearchProducts.%w", err)
	}
	return products, nil
}
