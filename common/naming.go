package common

import (
	"fmt"
	"strings"
	"time"
)

//go:generate go run github.com/dmarkham/enumer -json -type Constellation

// Constellation defines the kind of satellites
type Constellation int

const (
	Unknown   Constellation = iota
	Sentinel1               // MMM_BB_TTTR_LFPP_YYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS_OOOOOO_DDDDDD_CCCC
	Sentinel2               // MMM_MSIXXX_YYYYMMDDTHHMMSS_Nxxyy_ROOO_Txxxxx_<Product Discriminator>
)

// GetConstellationFromString returns the constellation from the user input
func GetConstellationFromString(input string) Constellation {
	switch strings.ToLower(input) {
	case "sentinel1", "sentinel-1":
		return Sentinel1
	case "sentinel2", "sentinel-2":
		return Sentinel2
	}
	return GetConstellationFromProductID(input)
}

// GetConstellationFromProductID guesses the constellation from the product identifier
func GetConstellationFromProductID(productID string) Constellation {
	if strings.HasPrefix(productID, "S1") {
		return Sentinel1
	}
	if strings.HasPrefix(productID, "S2") {
		return Sentinel2
	}
	return Unknown
}

// GetDateFromProductID extracts the acquisition day from the product identifier
func GetDateFromProductID(productID string) (time.Time, error) {
	format, err := Info(productID)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse("20060102", fmt.Sprintf("%s%s%s", format["YEAR"], format["MONTH"], format["DAY"]))
}

// Info extracts the fields encoded in the product identifier.
// e.g. S1A_IW_SLC__1SDV_20190115T170106_20190115T170133_025491_02D361_7F7C
// or   S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859
func Info(productID string) (map[string]string, error) {
	productID = strings.TrimSuffix(productID, ".SAFE")
	switch GetConstellationFromProductID(productID) {
	case Sentinel1:
		if len(productID) < len("MMM_BB_TTTR_LFPP_YYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS_OOOOOO_DDDDDD_CCCC") {
			return nil, fmt.Errorf("invalid Sentinel1 product identifier: %s", productID)
		}
		return map[string]string{
			"SCENE":            productID,
			"MISSION_ID":       productID[0:3],
			"MISSION_VERSION":  productID[2:3],
			"MODE":             productID[4:6],
			"PRODUCT_TYPE":     productID[7:10],
			"RESOLUTION":       productID[10:11],
			"PROCESSING_LEVEL": productID[12:13],
			"PRODUCT_CLASS":    productID[13:14],
			"POLARISATION":     productID[14:16],
			"DATE":             productID[17:25],
			"YEAR":             productID[17:21],
			"MONTH":            productID[21:23],
			"DAY":              productID[23:25],
			"TIME":             productID[26:32],
			"HOUR":             productID[26:28],
			"MINUTE":           productID[28:30],
			"SECOND":           productID[30:32],
			"ORBIT":            productID[49:55],
			"MISSION":          productID[56:62],
			"UNIQUE_ID":        productID[63:67],
		}, nil
	case Sentinel2:
		if len(productID) < len("MMM_MSIXXX_YYYYMMDDTHHMMSS_Nxxyy_ROOO_Txxxxx_YYYYMMDDTHHMMSS") {
			return nil, fmt.Errorf("invalid Sentinel2 product identifier: %s", productID)
		}
		return map[string]string{
			"SCENE":         productID,
			"MISSION_ID":    productID[0:3],
			"PRODUCT_LEVEL": productID[7:10],
			"DATE":          productID[11:19],
			"YEAR":          productID[11:15],
			"MONTH":         productID[15:17],
			"DAY":           productID[17:19],
			"TIME":          productID[20:26],
			"HOUR":          productID[20:22],
			"MINUTE":        productID[22:24],
			"SECOND":        productID[24:26],
			"PDGS":          productID[28:32],
			"ORBIT":         productID[34:37],
			"TILE":          productID[38:44],
			"UTM_ZONE":      strings.TrimLeft(productID[39:41], "0"),
			"LATITUDE_BAND": productID[41:42],
			"GRID_SQUARE":   productID[42:44],
		}, nil
	}
	return nil, fmt.Errorf("constellation not supported: %s", productID)
}

// FormatBrackets replaces all the {KEY} occurrences in pattern by infos["KEY"]
func FormatBrackets(pattern string, infos map[string]string) string {
	for k, v := range infos {
		pattern = strings.ReplaceAll(pattern, "{"+k+"}", v)
	}
	return pattern
}
