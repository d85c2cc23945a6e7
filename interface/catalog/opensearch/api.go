package opensearch

// Opensearch specifications https://github.com/dewitt/opensearch/blob/master/opensearch-1-1-draft-6.md

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

type Hits struct {
	Uuid       string           `json:"id"`
	Footprint  geojson.Geometry `json:"geometry"`
	Properties struct {
		Identifier           string  `json:"title"`
		BeginPosition        string  `json:"startDate"`
		IngestionDate        string  `json:"published"`
		ProductType          string  `json:"productType"`
		CloudCoverPercentage float64 `json:"cloudCover"`
		OrbitDirection       string  `json:"orbitDirection"`
		RelativeOrbitNumber  int     `json:"relativeOrbitNumber"`
		OrbitNumber          int     `json:"orbitNumber"`
		Polarisation         string  `json:"polarisation"`
		Quicklook            string  `json:"quicklook"`
		Services             struct {
			Download struct {
				URL  string `json:"url"`
				Size int64  `json:"size"`
			} `json:"download"`
		} `json:"services"`
	} `json:"properties"`
}

type Config struct {
	Provider string
	BaseUrl  string
}

func ConstructQuery(ctx context.Context, criteria *entities.SearchCriteria, aoi geos.Geometry) (string, error) {
	mapKey := map[string]string{
		"producttype":           "productType=%s",
		"polarisationmode":      "polarisation=%s",
		"sensoroperationalmode": "sensorMode=%s",
		"cloudcoverpercentage":  "cloudCover=%s",
	}

	// Construct Query
	parametersMap := map[string]string{}
	switch common.GetConstellationFromString(criteria.Constellation) {
	case common.Sentinel1:
		parametersMap[mapKey["producttype"]] = "SLC"
		parametersMap[mapKey["polarisationmode"]] = "VV%26VH"
		parametersMap[mapKey["sensoroperationalmode"]] = "IW"
	case common.Sentinel2:
		parametersMap[mapKey["producttype"]] = "S2MSI1C"
	default:
		return "", entities.ErrInvalidCriteria{Reason: "OpenSearch: constellation not supported: " + criteria.Constellation}
	}
	if criteria.ProductType != "" {
		parametersMap[mapKey["producttype"]] = criteria.ProductType
	}
	if criteria.CloudCoverMax > 0 {
		parametersMap[mapKey["cloudcoverpercentage"]] = fmt.Sprintf("[0,%g]", criteria.CloudCoverMax)
	}
	for k, v := range criteria.Parameters {
		if nk, ok := mapKey[k]; ok {
			k = nk
		}
		parametersMap[k] = v
	}

	var parameters []string
	for k, v := range parametersMap {
		if k == "filename" {
			log.Logger(ctx).Debug("OpenSearch: Search by Filename not supported")
			continue
		}
		if strings.Contains(k, "polarisation") {
			v = strings.Replace(v, " ", "%26", 1)
		} else if strings.Contains(k, "cloudCover") {
			v = strings.Replace(v, " TO ", ",", 1)
		}
		parameters = append(parameters, fmt.Sprintf(k, v))
	}

	// Append aoi
	{
		convexhull, err := aoi.ConvexHull()
		if err != nil {
			return "", fmt.Errorf("OpenSearch.ConvexHull: %w", err)
		}

		convexhullWKT, err := convexhull.ToWKT()
		if err != nil {
			return "", fmt.Errorf("OpenSearch.ToWKT: %w", err)
		}
		parameters = append(parameters, fmt.Sprintf("geometry=%s", neturl.QueryEscape(convexhullWKT)))
	}

	// Append time
	parameters = append(parameters, fmt.Sprintf("startDate=%s&completionDate=%s", criteria.StartTime.Format("2006-01-02T15:04:05.999Z"), criteria.EndTime.Format("2006-01-02T15:04:05.999Z")))

	return strings.Join(parameters, "&"), nil
}

func Query(ctx context.Context, query string, config Config, page, limit, catalogLimit int) ([]Hits, error) {
	var rawProducts []Hits
	totalPages := "?"

	for _, queryParams := range service.ComputePagesToQuery(page, limit, catalogLimit) {
		log.Logger(ctx).Sugar().Debugf("[%s] Search page %d/%s", config.Provider, queryParams.Page, totalPages)

		// Load results
		url := config.BaseUrl + query + fmt.Sprintf("&maxRecords=%d&page=%d", queryParams.Limit, queryParams.Page+1)
		jsonResults, err := service.GetBodyRetry(url, 3)
		if err != nil {
			return nil, fmt.Errorf("query.getBodyRetry: %w", err)
		}

		//JSON
		results := struct {
			Status     int `json:"status"`
			Properties struct {
				TotalResults int `json:"totalResults"`
				Links        []struct {
					Rel  string `json:"rel"`
					Href string `json:"href"`
				}
			} `json:"properties"`
			Hits []Hits `json:"features"`
		}{}

		// Read results to retrieve products
		if err := json.Unmarshal(jsonResults, &results); err != nil {
			return nil, fmt.Errorf("query.Unmarshal : %w (response: %s)", err, jsonResults)
		}

		if results.Status != 0 && results.Status != 200 {
			return nil, fmt.Errorf("query : http status %d (response: %s)", results.Status, jsonResults)
		}

		// Merge the results
		rawProducts = append(rawProducts, service.QueryGetResult(&queryParams, results.Hits)...)

		// Is there a next page ?
		nextPage := false
		for _, link := range results.Properties.Links {
			if strings.ToLower(link.Rel) == "next" && link.Href != "" {
				nextPage = true
			}
		}

		if !nextPage || len(rawProducts) == limit {
			break
		}
		totalPages = strconv.Itoa(results.Properties.TotalResults/queryParams.Limit + 1)
	}

	return rawProducts, nil
}

func Parse(criteria *entities.SearchCriteria, hits []Hits) (entities.Products, error) {
	constellation := common.GetConstellationFromString(criteria.Constellation)

	// Parse results
	products := make([]*common.Product, len(hits))
	for i, rawProduct := range hits {
		// Parse date
		date, err := time.Parse(time.RFC3339Nano, rawProduct.Properties.BeginPosition)
		if err != nil {
			return entities.Products{}, fmt.Errorf("OpenSearch.Parse.TimeParse: %w", err)
		}

		metadata := map[string]string{
			"ingestionDate":       rawProduct.Properties.IngestionDate,
			"orbitDirection":      rawProduct.Properties.OrbitDirection,
			"relativeOrbitNumber": fmt.Sprintf("%d", rawProduct.Properties.RelativeOrbitNumber),
			"orbitNumber":         fmt.Sprintf("%d", rawProduct.Properties.OrbitNumber),
		}
		switch constellation {
		case common.Sentinel1:
			metadata["polarisation"] = rawProduct.Properties.Polarisation
		}

		products[i] = &common.Product{
			SourceID:    strings.TrimSuffix(rawProduct.Properties.Identifier, ".SAFE"),
			AOI:         criteria.AOIID,
			GeometryWKT: wkt.MustEncode(rawProduct.Footprint.Geometry),
			Data: common.ProductAttrs{
				UUID:          rawProduct.Uuid,
				Date:          date,
				DownloadURL:   rawProduct.Properties.Services.Download.URL,
				QuicklookURL:  rawProduct.Properties.Quicklook,
				SizeBytes:     rawProduct.Properties.Services.Download.Size,
				CloudCover:    rawProduct.Properties.CloudCoverPercentage,
				ProductType:   rawProduct.Properties.ProductType,
				Constellation: constellation,
				Metadata:      metadata,
			},
		}
	}

	return entities.Products{Products: products}, nil
}
