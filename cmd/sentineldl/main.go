package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/geosat-ops/sentineldownloader/catalog"
	"github.com/geosat-ops/sentineldownloader/catalog/entities"
	"github.com/geosat-ops/sentineldownloader/downloader"
	"github.com/geosat-ops/sentineldownloader/hub"
	ifcatalog "github.com/geosat-ops/sentineldownloader/interface/catalog"
	"github.com/geosat-ops/sentineldownloader/interface/catalog/copernicus"
	"github.com/geosat-ops/sentineldownloader/interface/catalog/creodias"
	db "github.com/geosat-ops/sentineldownloader/interface/database"
	"github.com/geosat-ops/sentineldownloader/interface/database/csvfile"
	"github.com/geosat-ops/sentineldownloader/interface/database/pg"
	"github.com/geosat-ops/sentineldownloader/interface/provider"
	"github.com/geosat-ops/sentineldownloader/quicklook"
	"github.com/geosat-ops/sentineldownloader/service/log"
)

type config struct {
	AppPort       string
	WorkingDir    string
	DbConnection  string
	LogLevel      string
	MaxConcurrent int

	// Catalogs
	WithCopernicusCatalog bool
	WithCreodiasCatalog   bool
	CopernicusCatalogURL  string
	CreodiasCatalogURL    string
	CatalogLimit          int

	// Image providers
	CopernicusUsername string
	CopernicusPassword string
	CreodiasUsername   string
	CreodiasPassword   string
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	GSProviderBuckets  []string
	GSPublic           bool
	FTPPathPattern     string
	FTPUsername        string
	FTPPassword        string
	LocalProviderPath  string

	// One-shot search
	AOI           string
	GeometryFile  string
	StartDate     string
	EndDate       string
	Constellation string
	ProductType   string
	MaxCloudCover float64
	Download      bool
	Quicklooks    int
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.AppPort, "port", "8080", "port of the http server")
	flag.StringVar(&config.WorkingDir, "workdir", ".", "working directory to store the inventory, the products and the quicklooks")
	flag.StringVar(&config.DbConnection, "dbConnection", "", "postgres connection for the inventory (optional, default: csv inventory in workdir)")
	flag.StringVar(&config.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.IntVar(&config.MaxConcurrent, "max-concurrent", 2, "maximum number of simultaneous downloads")

	// Catalogs
	flag.BoolVar(&config.WithCopernicusCatalog, "copernicus-catalog", true, "search the Copernicus Dataspace catalog")
	flag.BoolVar(&config.WithCreodiasCatalog, "creodias-catalog", false, "search the Creodias catalog")
	flag.StringVar(&config.CopernicusCatalogURL, "copernicus-catalog-url", "", "override the Copernicus Dataspace odata url (optional)")
	flag.StringVar(&config.CreodiasCatalogURL, "creodias-catalog-url", "", "override the Creodias resto url (optional)")
	flag.IntVar(&config.CatalogLimit, "catalog-limit", 0, "maximum number of products per catalog request (optional)")

	// Providers
	flag.StringVar(&config.CopernicusUsername, "copernicus-username", "", "copernicus dataspace account username (optional). To configure Copernicus as a potential image Provider.")
	flag.StringVar(&config.CopernicusPassword, "copernicus-password", "", "copernicus dataspace account password (optional)")
	flag.StringVar(&config.CreodiasUsername, "creodias-username", "", "creodias account username (optional). To configure Creodias as a potential image Provider.")
	flag.StringVar(&config.CreodiasPassword, "creodias-password", "", "creodias account password (optional)")
	flag.StringVar(&config.AwsAccessKeyID, "aws-access-key-id", "", "aws access key id (optional). To configure Sentinel-2 on AWS as a potential image Provider (requester pays).")
	flag.StringVar(&config.AwsSecretAccessKey, "aws-secret-access-key", "", "aws secret access key (optional)")
	flag.BoolVar(&config.GSPublic, "gs-public", false, "access the google storage buckets without authentication")
	gsProviderBuckets := flag.String("gs-provider-buckets", "", `Google Storage buckets. List of constellation:bucket comma-separated (optional). To configure GS as a potential image Provider.
	bucket can contain several {IDENTIFIER} than will be replaced according to the product name.
	IDENTIFIER must be one of SCENE, MISSION_ID, PRODUCT_LEVEL, DATE(YEAR/MONTH/DAY), TIME(HOUR/MINUTE/SECOND), PDGS, ORBIT, TILE (LATITUDE_BAND/GRID_SQUARE/GRANULE_ID)
	 `)
	flag.StringVar(&config.FTPPathPattern, "ftp-path", "", "ftp server and path pattern where images are stored (optional). To configure an ftp server as a potential image Provider.")
	flag.StringVar(&config.FTPUsername, "ftp-username", "", "ftp account username (optional)")
	flag.StringVar(&config.FTPPassword, "ftp-password", "", "ftp account password (optional)")
	flag.StringVar(&config.LocalProviderPath, "local-path", "", "local path where images are stored (optional). To configure a local path as a potential image Provider.")

	// One-shot search
	flag.StringVar(&config.AOI, "aoi", "", "aoi id. If set, the search is run once and the server is not started.")
	flag.StringVar(&config.GeometryFile, "geometry", "", "path to the geojson geometry of the aoi")
	flag.StringVar(&config.StartDate, "start-date", "", "start date of the search")
	flag.StringVar(&config.EndDate, "end-date", "", "end date of the search")
	flag.StringVar(&config.Constellation, "constellation", "sentinel2", "constellation to search (sentinel1, sentinel2)")
	flag.StringVar(&config.ProductType, "product-type", "", "product type to search (optional, default depends on the constellation)")
	flag.Float64Var(&config.MaxCloudCover, "max-cloud-cover", 0, "maximum cloud cover in percent (optional, 0: no ceiling)")
	flag.BoolVar(&config.Download, "download", false, "download the products found")
	flag.IntVar(&config.Quicklooks, "quicklooks", 0, "draw the quicklooks of the products found as a png grid with the given number of columns")

	flag.Parse()

	if config.AppPort == "" && config.AOI == "" {
		return nil, fmt.Errorf("missing port config flag")
	}
	if config.WorkingDir == "" {
		return nil, fmt.Errorf("missing workdir config flag")
	}
	if *gsProviderBuckets != "" {
		config.GSProviderBuckets = strings.Split(*gsProviderBuckets, ",")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	if level, err := zapcore.ParseLevel(config.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Inventory
	var inventory db.InventoryBackend
	if config.DbConnection != "" {
		if inventory, err = pg.New(ctx, config.DbConnection); err != nil {
			return fmt.Errorf("pg.New: %w", err)
		}
	} else {
		if inventory, err = csvfile.New(config.WorkingDir); err != nil {
			return fmt.Errorf("csvfile.New: %w", err)
		}
	}

	// Catalogs
	var catalogs []ifcatalog.ProductCatalog
	var catalogNames []string
	if config.WithCopernicusCatalog {
		catalogNames = append(catalogNames, "Copernicus")
		catalogs = append(catalogs, &copernicus.Provider{BaseURL: config.CopernicusCatalogURL, Limit: config.CatalogLimit})
	}
	if config.WithCreodiasCatalog {
		catalogNames = append(catalogNames, "Creodias")
		catalogs = append(catalogs, &creodias.Provider{BaseURL: config.CreodiasCatalogURL, Limit: config.CatalogLimit})
	}
	if len(catalogs) == 0 {
		return fmt.Errorf("no catalog defined...")
	}

	// Load image providers
	var imageProviders []provider.ImageProvider
	var providerNames []string
	if config.LocalProviderPath != "" {
		providerNames = append(providerNames, "local ("+config.LocalProviderPath+")")
		imageProviders = append(imageProviders, provider.NewLocalImageProvider(config.LocalProviderPath))
	}
	if len(config.GSProviderBuckets) != 0 {
		gs := provider.NewGSImageProvider(config.GSPublic)
		for _, gsbucket := range config.GSProviderBuckets {
			bucket := strings.SplitN(gsbucket, ":", 2)
			if len(bucket) != 2 {
				return fmt.Errorf("malformed GSBuckets config. Must be constellation:bucket")
			}
			if err := gs.AddBucket(bucket[0], bucket[1]); err != nil {
				return fmt.Errorf("malformed GSBuckets config. Must be constellation:bucket")
			}
		}
		providerNames = append(providerNames, "GS ("+strings.Join(config.GSProviderBuckets, ", ")+")")
		imageProviders = append(imageProviders, gs)
	}
	if config.AwsAccessKeyID != "" {
		providerNames = append(providerNames, "AWS ("+config.AwsAccessKeyID+")")
		imageProviders = append(imageProviders, provider.NewSentinelAwsImageProvider(config.AwsAccessKeyID, config.AwsSecretAccessKey))
	}
	if config.CopernicusUsername != "" {
		providerNames = append(providerNames, "Copernicus ("+config.CopernicusUsername+")")
		imageProviders = append(imageProviders, provider.NewCopernicusImageProvider(config.CopernicusUsername, config.CopernicusPassword))
	}
	if config.CreodiasUsername != "" {
		providerNames = append(providerNames, "Creodias ("+config.CreodiasUsername+")")
		imageProviders = append(imageProviders, provider.NewCreoDiasImageProvider(config.CreodiasUsername, config.CreodiasPassword))
	}
	if config.FTPPathPattern != "" {
		providerNames = append(providerNames, "FTP ("+config.FTPPathPattern+")")
		imageProviders = append(imageProviders, provider.NewFTPImageProvider(config.FTPPathPattern, config.FTPUsername, config.FTPPassword))
	}
	if len(imageProviders) == 0 {
		log.Logger(ctx).Warn("no image providers defined, downloads will fail")
	}

	h := &hub.Hub{
		Catalog:     &catalog.Catalog{Providers: catalogs},
		Coordinator: &downloader.Coordinator{ImageProviders: imageProviders, MaxConcurrent: config.MaxConcurrent},
		Renderer:    &quicklook.Renderer{Fetcher: &quicklook.Fetcher{}},
		Inventory:   inventory,
		WorkingDir:  config.WorkingDir,
	}

	if config.AOI != "" {
		return runOnce(ctx, h, config)
	}

	headersOk := handlers.AllowedHeaders([]string{"*"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	s := http.Server{
		Addr:    ":" + config.AppPort,
		Handler: handlers.CORS(originsOk, headersOk, methodsOk)(h.NewHandler()),
	}
	log.Logger(ctx).Debug("server starts on :" + config.AppPort + " searching " + strings.Join(catalogNames, ", ") + " downloading from " + strings.Join(providerNames, ", "))
	return s.ListenAndServe()
}

// runOnce searches the aoi and optionally downloads the products and draws the quicklooks
func runOnce(ctx context.Context, h *hub.Hub, config *config) error {
	criteria, err := newSearchCriteria(config)
	if err != nil {
		return err
	}

	products, err := h.Search(ctx, criteria)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	for _, product := range products {
		log.Logger(ctx).Sugar().Infof("%s %s [%s] cloud-cover:%g%%", product.SourceID, product.Data.Date.Format("2006-01-02"), product.Status, product.Data.CloudCover)
	}

	if config.Download {
		tasks, err := h.DownloadAOI(ctx, config.AOI)
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		for _, task := range tasks {
			if msg := task.Message(); msg != "" {
				log.Logger(ctx).Sugar().Infof("%s: %s (%s)", task.Product.SourceID, task.Status(), msg)
			} else {
				log.Logger(ctx).Sugar().Infof("%s: %s", task.Product.SourceID, task.Status())
			}
		}
	}

	if config.Quicklooks > 0 {
		files, err := h.FetchQuicklooks(ctx, config.AOI)
		if err != nil {
			return fmt.Errorf("quicklooks: %w", err)
		}
		log.Logger(ctx).Sugar().Infof("%d quicklooks fetched", len(files))

		img, err := h.RenderQuicklooks(ctx, config.AOI, config.Quicklooks)
		if err != nil {
			return fmt.Errorf("quicklooks: %w", err)
		}
		if err := os.MkdirAll(h.QuicklooksDir(config.AOI), 0777); err != nil {
			return fmt.Errorf("quicklooks: %w", err)
		}
		gridFile := filepath.Join(h.QuicklooksDir(config.AOI), "grid.png")
		file, err := os.Create(gridFile)
		if err != nil {
			return fmt.Errorf("quicklooks: %w", err)
		}
		defer file.Close()
		if err := quicklook.EncodePNG(file, img); err != nil {
			return fmt.Errorf("quicklooks: %w", err)
		}
		log.Logger(ctx).Sugar().Infof("quicklooks grid written to %s", gridFile)
	}

	return nil
}

func newSearchCriteria(config *config) (entities.SearchCriteria, error) {
	criteria := entities.SearchCriteria{
		AOIID:         config.AOI,
		Constellation: config.Constellation,
		ProductType:   config.ProductType,
		CloudCoverMax: config.MaxCloudCover,
	}

	var err error
	if criteria.StartTime, err = dateparse.ParseAny(config.StartDate); err != nil {
		return criteria, fmt.Errorf("start-date: %w", err)
	}
	if criteria.EndTime, err = dateparse.ParseAny(config.EndDate); err != nil {
		return criteria, fmt.Errorf("end-date: %w", err)
	}
	if criteria.EndTime.Equal(criteria.EndTime.Truncate(24 * time.Hour)) {
		criteria.EndTime = criteria.EndTime.Add(24*time.Hour - time.Second)
	}

	if config.GeometryFile == "" {
		return criteria, fmt.Errorf("missing geometry config flag")
	}
	raw, err := os.ReadFile(config.GeometryFile)
	if err != nil {
		return criteria, fmt.Errorf("geometry: %w", err)
	}
	if err := json.Unmarshal(raw, &criteria.AOI); err != nil {
		return criteria, fmt.Errorf("geometry %s: %w", config.GeometryFile, err)
	}
	return criteria, nil
}
