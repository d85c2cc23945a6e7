package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/service"
)

const copernicusDownloadProduct = "https://catalogue.dataspace.copernicus.eu/odata/v1/Products(%s)/$value"
const copernicusAuth = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"

// CopernicusImageProvider implements ImageProvider for the Copernicus Dataspace
type CopernicusImageProvider struct {
	user    string
	pword   string
	authURL string // defaults to copernicusAuth
	token   string
	expire  time.Time
}

// Name implements ImageProvider
func (ip *CopernicusImageProvider) Name() string {
	return "Copernicus"
}

// NewCopernicusImageProvider creates a new ImageProvider from the Copernicus Dataspace
func NewCopernicusImageProvider(user, pword string) *CopernicusImageProvider {
	return &CopernicusImageProvider{user: user, pword: pword}
}

// LoadCopernicusToken loads the download token
func (ip *CopernicusImageProvider) LoadCopernicusToken() error {
	authURL := ip.authURL
	if authURL == "" {
		authURL = copernicusAuth
	}
	// Ask for token
	resp, err := http.PostForm(authURL,
		url.Values{
			"client_id":  {"cdse-public"},
			"username":   {ip.user},
			"password":   {ip.pword},
			"grant_type": {"password"}})
	if err != nil {
		return fmt.Errorf("CopernicusToken.PostForm: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("CopernicusToken.ReadAll: %w", err)
	}
	defer resp.Body.Close()

	if service.UnauthorizedStatusCode(resp.StatusCode) {
		return service.ErrUnauthorized{Provider: ip.Name()}
	}

	token := struct {
		AccessToken string `json:"access_token"`
		Expire      int    `json:"expires_in"`
	}{}

	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("CopernicusToken.Unmarshall: %w", err)
	}
	if token.AccessToken == "" {
		return service.ErrUnauthorized{Provider: ip.Name()}
	}

	ip.token = token.AccessToken
	ip.expire = time.Now().Add(time.Duration(token.Expire) * time.Second)
	return nil
}

// Download implements ImageProvider
func (ip *CopernicusImageProvider) Download(ctx context.Context, product common.Product, localDir string) error {
	productName := product.SourceID
	switch common.GetConstellationFromProductID(productName) {
	case common.Sentinel1, common.Sentinel2:
	default:
		return fmt.Errorf("CopernicusImageProvider: constellation not supported")
	}

	downloadURL := product.Data.DownloadURL
	if downloadURL == "" {
		if product.Data.UUID == "" {
			return fmt.Errorf("CopernicusImageProvider: uuid not found for %s", productName)
		}
		downloadURL = fmt.Sprintf(copernicusDownloadProduct, product.Data.UUID)
	}

	// Load token
	if time.Now().After(ip.expire) || ip.token == "" {
		if err := ip.LoadCopernicusToken(); err != nil {
			return fmt.Errorf("CopernicusImageProvider.Download.%w", err)
		}
	}

	token := "Bearer " + ip.token
	if err := downloadZipWithAuth(ctx, downloadURL, localDir, productName, ip.Name(), nil, nil, "Authorization", &token, true); err != nil {
		return fmt.Errorf("CopernicusImageProvider.%w", err)
	}
	return nil
}
