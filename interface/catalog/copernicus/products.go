package copernicus

import (
	"context"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"

	"github.com/geosat-ops/sentineldownloader/catalog/entities"
	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/service"
	"github.com/geosat-ops/sentineldownloader/service/log"
)

const (
	PageLimit        = 1000
	ODataQueryURL    = "https://catalogue.dataspace.copernicus.eu/odata/v1/Products?$filter="
	ODataDownloadURL = "https://catalogue.dataspace.copernicus.eu/odata/v1/Products(%s)/$value"
)

// Provider searches the Copernicus Dataspace OData catalog
type Provider struct {
	BaseURL string // defaults to ODataQueryURL
	Limit   int    // catalog page size, defaults to PageLimit
}

// Name implements catalog.ProductCatalog
func (p *Provider) Name() string {
	return "Copernicus"
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
	mapKey := map[string]string{
		"platformname":          "Collection/Name eq '%s'",
		"producttype":           "Attributes/OData.CSC.StringAttribute/any(att:att/Name eq 'productType' and att/OData.CSC.StringAttribute/Value eq '%s')",
		"polarisationmode":      "Attributes/OData.CSC.StringAttribute/any(att:att/Name eq 'polarisationChannels' and att/OData.CSC.StringAttribute/Value eq '%s')",
		"sensoroperationalmode": "Attributes/OData.CSC.StringAttribute/any(att:att/Name eq 'operationalMode' and att/OData.CSC.StringAttribute/Value eq '%s')",
		"relativeorbitnumber":   "Attributes/OData.CSC.IntegerAttribute/any(att:att/Name eq 'relativeOrbitNumber' and att/OData.CSC.IntegerAttribute/Value eq %s)",
		"filename":              "contains(Name,'%s')",
	}

	// Default values per constellation
	parametersMap := map[string]string{}
	constellation := common.GetConstellationFromString(criteria.Constellation)
	switch constellation {
	case common.Sentinel1:
		parametersMap[mapKey["platformname"]] = "SENTINEL-1"
		parametersMap[mapKey["producttype"]] = "SLC"
	case common.Sentinel2:
		parametersMap[mapKey["platformname"]] = "SENTINEL-2"
		parametersMap[mapKey["producttype"]] = "S2MSI1C"
	default:
		return entities.Products{}, entities.ErrInvalidCriteria{Reason: "Copernicus: constellation not supported: " + criteria.Constellation}
	}
	if criteria.ProductType != "" {
		parametersMap[mapKey["producttype"]] = criteria.ProductType
	}

	// Append user-defined parameters
	for k, v := range criteria.Parameters {
		if nk, ok := mapKey[k]; ok {
			k = nk
		}
		parametersMap[k] = v
	}

	var parameters []string
	{
		aoiWKT, err := aoi.ToWKT()
		if err != nil {
			return entities.Products{}, fmt.Errorf("Copernicus.SearchProducts.ToWKT: %w", err)
		}
		parameters = append(parameters, "OData.CSC.Intersects(area=geography'SRID=4326;"+aoiWKT+"')")
	}

	// Append time range
	parameters = append(parameters,
		fmt.Sprintf("ContentDate/Start gt %s", criteria.StartTime.Format("2006-01-02T15:04:05.999Z")),
		fmt.Sprintf("ContentDate/Start lt %s", criteria.EndTime.Format("2006-01-02T15:04:05.999Z")))

	// Append cloud cover ceiling
	if criteria.CloudCoverMax > 0 {
		parameters = append(parameters, fmt.Sprintf("Attributes/OData.CSC.DoubleAttribute/any(att:att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value le %g)", criteria.CloudCoverMax))
	}

	for k, v := range parametersMap {
		if strings.Contains(k, "polarisation") {
			v = strings.Replace(v, " ", "&", 1)
		} else if strings.Contains(k, "contains(Name") {
			v = strings.Trim(v, "*")
		}
		parameters = append(parameters, fmt.Sprintf(k, v))
	}
	query := strings.Join(parameters, " and ")

	rawProducts, err := p.queryOData(ctx, query, criteria.Page, criteria.Limit)
	if err != nil {
		return entities.Products{}, fmt.Errorf("Copernicus.SearchProducts.%w", err)
	}

	// Parse results
	products := make([]*common.Product, len(rawProducts))
	for i, hit := range rawProducts {
		date, err := time.Parse(time.RFC3339Nano, hit.ContentDate.BeginPosition)
		if err != nil {
			return entities.Products{}, fmt.Errorf("Copernicus.SearchProducts.TimeParse: %w", err)
		}
		sourceID := strings.TrimSuffix(hit.Identifier, ".SAFE")

		cloudCover := 0.0
		if cc, ok := hit.AttributesMap["cloudCover"]; ok {
			cloudCover, _ = strconv.ParseFloat(cc, 64)
		}

		products[i] = &common.Product{
			SourceID:    sourceID,
			AOI:         criteria.AOIID,
			GeometryWKT: wkt.MustEncode(hit.Footprint.Geometry),
			Data: common.ProductAttrs{
				UUID:          hit.UUID,
				Date:          date,
				DownloadURL:   fmt.Sprintf(ODataDownloadURL, hit.UUID),
				QuicklookURL:  hit.quicklookURL(),
				SizeBytes:     hit.ContentLength,
				CloudCover:    cloudCover,
				ProductType:   hit.AttributesMap["productType"],
				Constellation: constellation,
				Metadata:      hit.AttributesMap,
			},
		}
	}

	return entities.Products{Products: products}, nil
}

type hit struct {
	UUID        string           `json:"Id"`
	Identifier  string           `json:"Name"`
	Footprint   geojson.Geometry `json:"GeoFootprint"`
	ContentDate struct {
		BeginPosition string `json:"Start"`
	} `json:"ContentDate"`
	ContentLength int64 `json:"ContentLength"`
	Assets        []struct {
		Type        string `json:"Type"`
		DownloadURL string `json:"DownloadLink"`
	} `json:"Assets"`
	Attributes []struct {
		Name      string      `json:"Name"`
		Value     interface{} `json:"Value"`
		ValueType string      `json:"ValueType"`
	} `json:"Attributes"`
	AttributesMap map[string]string
}

func (h *hit) quicklookURL() string {
	for _, asset := range h.Assets {
		if strings.EqualFold(asset.Type, "QUICKLOOK") {
			return asset.DownloadURL
		}
	}
	return ""
}

func (p *Provider) queryOData(ctx context.Context, query string, page, limit int) ([]hit, error) {
	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = ODataQueryURL
	}
	catalogLimit := p.Limit
	if catalogLimit == 0 {
		catalogLimit = PageLimit
	}
	if limit == 0 {
		limit = catalogLimit
	}

	var rawProducts []hit
	query = neturl.QueryEscape(query)
	totalPages := "?"

	for _, queryParams := range service.ComputePagesToQuery(page, limit, catalogLimit) {
		log.Logger(ctx).Sugar().Debugf("[Copernicus] Search page %d/%s", queryParams.Page+1, totalPages)
		url := baseURL + query + fmt.Sprintf("&$orderby=ContentDate/Start desc&$top=%d&$skip=%d&$expand=Attributes&$expand=Assets", queryParams.Limit, queryParams.Limit*queryParams.Page)
		jsonResults, err := service.GetBodyRetry(url, 3)
		if err != nil {
			return nil, fmt.Errorf("queryOData: %w", err)
		}

		results := struct {
			Status int    `json:"status"`
			Next   string `json:"@odata.nextLink"`
			Count  int    `json:"@odata.count"`
			Hits   []hit  `json:"value"`
		}{}
		if err := json.Unmarshal(jsonResults, &results); err != nil {
			return nil, fmt.Errorf("queryOData.Unmarshal: %w (response: %s)", err, jsonResults)
		}
		if results.Status != 0 && results.Status != 200 {
			return nil, fmt.Errorf("queryOData: http status: %d (response: %s)", results.Status, jsonResults)
		}

		results.Hits = service.QueryGetResult(&queryParams, results.Hits)

		for i, h := range results.Hits {
			results.Hits[i].AttributesMap = map[string]string{}
			for _, elem := range h.Attributes {
				results.Hits[i].AttributesMap[elem.Name] = fmt.Sprintf("%v", elem.Value)
			}
			results.Hits[i].Attributes = nil
		}

		rawProducts = append(rawProducts, results.Hits...)

		if results.Next == "" || len(rawProducts) == limit {
			break
		}
		if results.Count > 0 {
			totalPages = strconv.Itoa((results.Count-1)/queryParams.Limit + 1)
		}
	}

	return rawProducts, nil
}
