package creodias

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulsmith/gogeos/geos"

	"github.com/geosat-ops/sentineldownloader/catalog/entities"
	"github.com/geosat-ops/sentineldownloader/common"
)

const restoResponse = `{
  "properties": {"totalResults": 1, "links": []},
  "features": [
    {
      "id": "0c04e1a4-9e3b-4d1a-bc2f-2a7cf0e8f2d1",
      "geometry": {"type": "Polygon", "coordinates": [[[5.1, 44.0], [6.4, 44.0], [6.4, 45.0], [5.1, 45.0], [5.1, 44.0]]]},
      "properties": {
        "title": "S1A_IW_SLC__1SDV_20190102T060754_20190102T060821_025309_02CCA8_1138.SAFE",
        "startDate": "2019-01-02T06:07:54.621Z",
        "published": "2019-01-02T12:00:00Z",
        "productType": "SLC",
        "orbitDirection": "descending",
        "relativeOrbitNumber": 37,
        "orbitNumber": 25309,
        "polarisation": "VV VH",
        "quicklook": "https://example.com/ql.png",
        "services": {"download": {"url": "https://example.com/dl.zip", "size": 4523456789}}
      }
    }
  ]
}`

func TestSearchProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, restoResponse)
	}))
	defer srv.Close()

	aoi, err := geos.FromWKT("POLYGON ((5.5 44.2, 6 44.2, 6 44.6, 5.5 44.6, 5.5 44.2))")
	if err != nil {
		t.Fatal(err)
	}

	provider := &Provider{BaseURL: srv.URL + "/search.json?"}
	criteria := &entities.SearchCriteria{
		AOIID:         "vercors",
		Constellation: "sentinel1",
		StartTime:     time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2019, 1, 10, 0, 0, 0, 0, time.UTC),
	}

	products, err := provider.SearchProducts(context.Background(), criteria, *aoi)
	if err != nil {
		t.Fatal(err)
	}
	if len(products.Products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products.Products))
	}

	p := products.Products[0]
	if p.SourceID != "S1A_IW_SLC__1SDV_20190102T060754_20190102T060821_025309_02CCA8_1138" {
		t.Errorf("unexpected sourceID %s", p.SourceID)
	}
	if p.Data.Constellation != common.Sentinel1 {
		t.Errorf("unexpected constellation %s", p.Data.Constellation)
	}
	if p.Data.DownloadURL != "https://example.com/dl.zip" {
		t.Errorf("unexpected download url %s", p.Data.DownloadURL)
	}
	if p.Data.QuicklookURL != "https://example.com/ql.png" {
		t.Errorf("unexpected quicklook url %s", p.Data.QuicklookURL)
	}
	if p.Data.SizeBytes != 4523456789 {
		t.Errorf("unexpected size %d", p.Data.SizeBytes)
	}
	if p.Data.Metadata["orbitDirection"] != "descending" {
		t.Errorf("unexpected metadata %v", p.Data.Metadata)
	}
	if p.Data.Metadata["polarisation"] != "VV VH" {
		t.Errorf("unexpected polarisation %v", p.Data.Metadata)
	}
	if p.GeometryWKT == "" {
		t.Error("expected a footprint")
	}
}

func TestSupports(t *testing.T) {
	provider := &Provider{}
	if !provider.Supports(common.Sentinel1) || !provider.Supports(common.Sentinel2) {
		t.Error("expected sentinel constellations to be supported")
	}
	if provider.Supports(common.Unknown) {
		t.Error("unknown constellation must not be supported")
	}
}
