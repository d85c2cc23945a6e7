package entities

import (
	"fmt"
	"time"

	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/go-spatial/geom/encoding/geojson"
)

// ErrInvalidCriteria is returned when the user input cannot bound a search
type ErrInvalidCriteria struct {
	Reason string
}

func (e ErrInvalidCriteria) Error() string {
	return "invalid search criteria: " + e.Reason
}

// Fatal marks the error as a caller input error (not worth a retry)
func (e ErrInvalidCriteria) Fatal() bool { return true }

// SearchCriteria is the immutable input of a search
type SearchCriteria struct {
	AOIID         string            `json:"aoi"`
	AOI           geojson.Geometry  `json:"geometry"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	Constellation string            `json:"constellation"`
	ProductType   string            `json:"product_type,omitempty"`
	CloudCoverMax float64           `json:"cloud_cover_max,omitempty"` // 0 => no ceiling
	Parameters    map[string]string `json:"parameters,omitempty"`      // free-form provider parameters
	Page          int               `json:"page,omitempty"`
	Limit         int               `json:"limit,omitempty"`
}

// Validate checks the criteria that do not depend on the AOI geometry
func (c *SearchCriteria) Validate() error {
	if c.StartTime.After(c.EndTime) {
		return ErrInvalidCriteria{Reason: fmt.Sprintf("start time %s is after end time %s", c.StartTime.Format(time.RFC3339), c.EndTime.Format(time.RFC3339))}
	}
	if common.GetConstellationFromString(c.Constellation) == common.Unknown {
		return ErrInvalidCriteria{Reason: "constellation not supported: " + c.Constellation}
	}
	if c.CloudCoverMax < 0 || c.CloudCoverMax > 100 {
		return ErrInvalidCriteria{Reason: fmt.Sprintf("cloud cover ceiling out of [0, 100]: %g", c.CloudCoverMax)}
	}
	if c.Page < 0 || c.Limit < 0 {
		return ErrInvalidCriteria{Reason: "negative page or limit"}
	}
	return nil
}

// Products is an ordered search result with provider properties (e.g. paging hints)
type Products struct {
	Products   []*common.Product
	Properties map[string]string
}
