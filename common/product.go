package common

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ProductAttrs are the remote attributes of a product returned by a catalog
type ProductAttrs struct {
	UUID          string            `json:"uuid"`
	Date          time.Time         `json:"date"`
	DownloadURL   string            `json:"download_url,omitempty"`
	QuicklookURL  string            `json:"quicklook_url,omitempty"`
	SizeBytes     int64             `json:"size_bytes,omitempty"`
	CloudCover    float64           `json:"cloud_cover,omitempty"`
	ProductType   string            `json:"product_type,omitempty"`
	Constellation Constellation     `json:"constellation,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Product is one satellite-imagery acquisition record offered by a catalog.
// It is created by a search and read-only thereafter.
type Product struct {
	SourceID    string       `json:"source_id"`
	AOI         string       `json:"aoi,omitempty"`
	GeometryWKT string       `json:"geometry,omitempty"`
	Data        ProductAttrs `json:"data,omitempty"`
}

// Value implements the driver.Value interface
func (a ProductAttrs) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface.
func (a *ProductAttrs) Scan(value interface{}) error {
	if value == nil {
		*a = ProductAttrs{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &a)
}
