// Package hub ties the catalog, the download coordinator, the quicklook renderer
// and the inventory together.
package hub

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/geosat-ops/sentineldownloader/catalog"
	"github.com/geosat-ops/sentineldownloader/catalog/entities"
	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/downloader"
	db "github.com/geosat-ops/sentineldownloader/interface/database"
	"github.com/geosat-ops/sentineldownloader/quicklook"
	"github.com/geosat-ops/sentineldownloader/service/log"
)

const (
	imagesDir     = "images"
	quicklooksDir = "qlooks"
)

// Hub is the main entrypoint of the downloader
type Hub struct {
	Catalog     *catalog.Catalog
	Coordinator *downloader.Coordinator
	Renderer    *quicklook.Renderer
	Inventory   db.InventoryBackend
	WorkingDir  string

	dbmu sync.Mutex
}

// ImagesDir returns the directory where the products of the aoi are downloaded
func (h *Hub) ImagesDir(aoi string) string {
	return filepath.Join(h.WorkingDir, aoi, imagesDir)
}

// QuicklooksDir returns the directory where the quicklooks of the aoi are stored
func (h *Hub) QuicklooksDir(aoi string) string {
	return filepath.Join(h.WorkingDir, aoi, quicklooksDir)
}

// Search queries the catalog and registers the new products in the inventory.
// Products already registered are left untouched.
func (h *Hub) Search(ctx context.Context, criteria entities.SearchCriteria) ([]db.Product, error) {
	products, err := h.Catalog.DoProductsInventory(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("Search.%w", err)
	}

	h.dbmu.Lock()
	defer h.dbmu.Unlock()
	var errExists db.ErrAlreadyExists
	if err := h.Inventory.CreateAOI(ctx, criteria.AOIID); err != nil {
		if !errors.As(err, &errExists) {
			return nil, fmt.Errorf("Search.%w", err)
		}
	}

	registered := make([]db.Product, 0, len(products))
	created := 0
	for _, product := range products {
		entry := db.Product{Status: common.StatusNEW}
		entry.Product = *product
		id, err := h.Inventory.CreateProduct(ctx, product.SourceID, criteria.AOIID, common.StatusNEW, product.Data)
		switch {
		case err == nil:
			created++
		case errors.As(err, &errExists):
			if id, err = h.Inventory.ProductID(ctx, criteria.AOIID, product.SourceID); err != nil {
				return nil, fmt.Errorf("Search.%w", err)
			}
			existing, err := h.Inventory.Product(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("Search.%w", err)
			}
			entry.Status = existing.Status
			entry.Message = existing.Message
		default:
			return nil, fmt.Errorf("Search.%w", err)
		}
		entry.ID = id
		registered = append(registered, entry)
	}
	log.Logger(ctx).Sugar().Infof("%d products found (%d new) for AOI %s", len(products), created, criteria.AOIID)

	return registered, nil
}

// DownloadAOI downloads all the products of the aoi that are not in a terminal state.
// The inventory is updated as the downloads progress.
func (h *Hub) DownloadAOI(ctx context.Context, aoi string) ([]*downloader.Task, error) {
	entries, err := h.Inventory.Products(ctx, aoi, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("DownloadAOI.%w", err)
	}

	ids := map[string]int{}
	var products []common.Product
	for _, entry := range entries {
		if entry.Status.Terminal() {
			continue
		}
		ids[entry.SourceID] = entry.ID
		products = append(products, entry.Product)
	}

	return h.download(ctx, products, ids, aoi)
}

// DownloadProducts downloads the given inventory entries, regardless of their status
func (h *Hub) DownloadProducts(ctx context.Context, aoi string, productIDs []int) ([]*downloader.Task, error) {
	ids := map[string]int{}
	var products []common.Product
	for _, id := range productIDs {
		entry, err := h.Inventory.Product(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("DownloadProducts.%w", err)
		}
		ids[entry.SourceID] = entry.ID
		products = append(products, entry.Product)
	}
	return h.download(ctx, products, ids, aoi)
}

func (h *Hub) download(ctx context.Context, products []common.Product, ids map[string]int, aoi string) ([]*downloader.Task, error) {
	coordinator := *h.Coordinator
	coordinator.OnUpdate = func(task *downloader.Task) {
		id, ok := ids[task.Product.SourceID]
		if !ok {
			return
		}
		var message *string
		if m := task.Message(); m != "" {
			message = &m
		}
		h.dbmu.Lock()
		defer h.dbmu.Unlock()
		if err := h.Inventory.UpdateProduct(ctx, id, task.Status(), message); err != nil {
			log.Logger(ctx).Sugar().Warnf("download: failed to update product %d: %v", id, err)
		}
	}

	tasks, err := coordinator.DownloadAll(ctx, products, h.ImagesDir(aoi))
	if err != nil {
		return tasks, fmt.Errorf("download.%w", err)
	}
	return tasks, nil
}

// FetchQuicklooks downloads the quicklooks of the aoi into its quicklooks
// directory, best effort. It returns the files written.
func (h *Hub) FetchQuicklooks(ctx context.Context, aoi string) ([]string, error) {
	entries, err := h.Inventory.Products(ctx, aoi, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("FetchQuicklooks.%w", err)
	}
	localDir := h.QuicklooksDir(aoi)
	if err := os.MkdirAll(localDir, 0777); err != nil {
		return nil, fmt.Errorf("FetchQuicklooks.%w", err)
	}
	var files []string
	for _, entry := range entries {
		file, err := h.Renderer.Fetcher.FetchToFile(ctx, entry.Product, localDir)
		if err != nil {
			log.Logger(ctx).Sugar().Warnf("FetchQuicklooks: %v", err)
			continue
		}
		files = append(files, file)
	}
	return files, nil
}

// RenderQuicklooks draws the grid of the quicklooks of the aoi
func (h *Hub) RenderQuicklooks(ctx context.Context, aoi string, columns int) (image.Image, error) {
	entries, err := h.Inventory.Products(ctx, aoi, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("RenderQuicklooks.%w", err)
	}
	products := make([]common.Product, len(entries))
	for i, entry := range entries {
		products[i] = entry.Product
	}
	img, err := h.Renderer.RenderGrid(ctx, products, columns)
	if err != nil {
		return nil, fmt.Errorf("RenderQuicklooks.%w", err)
	}
	return img, nil
}

// AOIStatus returns the number of products of the aoi in each status
func (h *Hub) AOIStatus(ctx context.Context, aoi string) (db.Status, error) {
	return h.Inventory.ProductsStatus(ctx, aoi)
}
