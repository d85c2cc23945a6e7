package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/paulsmith/gogeos/geos"

	"github.com/geosat-ops/sentineldownloader/catalog/entities"
	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/interface/catalog"
	"github.com/geosat-ops/sentineldownloader/service"
)

func providers(ps ...catalog.ProductCatalog) []catalog.ProductCatalog { return ps }

type fakeCatalog struct {
	name     string
	products []*common.Product
	err      error
	calls    int
}

func (f *fakeCatalog) Name() string { return f.name }

func (f *fakeCatalog) Supports(c common.Constellation) bool { return c == common.Sentinel2 }

func (f *fakeCatalog) SearchProducts(ctx context.Context, criteria *entities.SearchCriteria, aoi geos.Geometry) (entities.Products, error) {
	f.calls++
	if f.err != nil {
		return entities.Products{}, f.err
	}
	return entities.Products{Products: f.products}, nil
}

func testCriteria() entities.SearchCriteria {
	return entities.SearchCriteria{
		AOIID:         "alps",
		AOI:           geojson.Geometry{Geometry: geom.Polygon{{{6, 45}, {7, 45}, {7, 46}, {6, 46}, {6, 45}}}},
		Constellation: "sentinel2",
		StartTime:     time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

func product(sourceID string, date time.Time) *common.Product {
	return &common.Product{
		SourceID: sourceID,
		Data:     common.ProductAttrs{UUID: sourceID + "-uuid", Date: date, Constellation: common.Sentinel2},
	}
}

func TestDoProductsInventorySortsAndDeduplicates(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2021, 6, day, 10, 30, 0, 0, time.UTC) }
	provider := &fakeCatalog{name: "fake", products: []*common.Product{
		product("S2A_OLD", d(2)),
		product("S2A_NEW", d(20)),
		product("S2A_MID", d(11)),
		product("S2A_MID", d(11)),
	}}
	c := &Catalog{Providers: providers(provider)}

	products, err := c.DoProductsInventory(context.Background(), testCriteria())
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 3 {
		t.Fatalf("expected 3 unique products, got %d", len(products))
	}
	for i, want := range []string{"S2A_NEW", "S2A_MID", "S2A_OLD"} {
		if products[i].SourceID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, products[i].SourceID)
		}
	}
}

func TestDoProductsInventoryEmptyResult(t *testing.T) {
	c := &Catalog{Providers: providers(&fakeCatalog{name: "fake"})}
	products, err := c.DoProductsInventory(context.Background(), testCriteria())
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 0 {
		t.Fatalf("expected no product, got %d", len(products))
	}
}

func TestDoProductsInventoryFallsBackToNextProvider(t *testing.T) {
	failing := &fakeCatalog{name: "failing", err: service.MakeTemporary(errors.New("query: http status 503"))}
	working := &fakeCatalog{name: "working", products: []*common.Product{product("S2B_OK", time.Now().UTC())}}
	c := &Catalog{Providers: providers(failing, working)}

	products, err := c.DoProductsInventory(context.Background(), testCriteria())
	if err != nil {
		t.Fatal(err)
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Errorf("expected both providers to be queried, got %d/%d", failing.calls, working.calls)
	}
	if len(products) != 1 || products[0].SourceID != "S2B_OK" {
		t.Fatalf("unexpected products %v", products)
	}
}

func TestDoProductsInventoryAllProvidersFail(t *testing.T) {
	c := &Catalog{Providers: providers(
		&fakeCatalog{name: "a", err: errors.New("boom")},
		&fakeCatalog{name: "b", err: errors.New("bam")},
	)}
	if _, err := c.DoProductsInventory(context.Background(), testCriteria()); err == nil {
		t.Fatal("expected an error")
	}
}

func TestDoProductsInventoryRejectsBadCriteria(t *testing.T) {
	criteria := testCriteria()
	criteria.AOIID = "no spaces allowed"
	c := &Catalog{Providers: providers(&fakeCatalog{name: "fake"})}
	_, err := c.DoProductsInventory(context.Background(), criteria)
	var invalid entities.ErrInvalidCriteria
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidCriteria, got %v", err)
	}

	criteria = testCriteria()
	criteria.Constellation = "landsat8"
	if _, err := c.DoProductsInventory(context.Background(), criteria); err == nil {
		t.Fatal("expected an error for unsupported constellation")
	}
}

func TestDoProductsInventoryRejectsInvalidAOI(t *testing.T) {
	criteria := testCriteria()
	// bow-tie polygon
	criteria.AOI = geojson.Geometry{Geometry: geom.Polygon{{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}}}
	c := &Catalog{Providers: providers(&fakeCatalog{name: "fake"})}
	_, err := c.DoProductsInventory(context.Background(), criteria)
	var invalid entities.ErrInvalidCriteria
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidCriteria for a self-intersecting AOI, got %v", err)
	}

	criteria = testCriteria()
	criteria.AOI = geojson.Geometry{}
	if _, err := c.DoProductsInventory(context.Background(), criteria); !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidCriteria for a missing AOI, got %v", err)
	}
}
