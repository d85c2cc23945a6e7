// Package csvfile implements the inventory on the local filesystem.
// Each AOI is a directory of the workspace with an inventory.csv file,
// an images/ directory for the products and a qlooks/ directory for the quicklooks.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/geosat-ops/sentineldownloader/common"
	db "github.com/geosat-ops/sentineldownloader/interface/database"
	"github.com/geosat-ops/sentineldownloader/service"
)

const (
	inventoryFile = "inventory.csv"
	imagesDir     = "images"
	quicklooksDir = "qlooks"
)

var csvHeader = []string{"id", "source_id", "status", "message", "data"}

// Backend implements InventoryBackend on a workspace directory
type Backend struct {
	mu        sync.Mutex
	workspace string
}

// New creates a new backend using a workspace directory
func New(workspace string) (*Backend, error) {
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return nil, fmt.Errorf("csvfile.New: %w", err)
	}
	return &Backend{workspace: workspace}, nil
}

// ImagesDir returns the directory where the products of the aoi are stored
func (b *Backend) ImagesDir(aoi string) string {
	return filepath.Join(b.workspace, aoi, imagesDir)
}

// QuicklooksDir returns the directory where the quicklooks of the aoi are stored
func (b *Backend) QuicklooksDir(aoi string) string {
	return filepath.Join(b.workspace, aoi, quicklooksDir)
}

// IsDownloaded returns true if the product archive or the unzipped product is in the images directory
func (b *Backend) IsDownloaded(aoi, sourceID string) bool {
	dir := b.ImagesDir(aoi)
	for _, ext := range []service.Extension{service.ExtensionZIP, service.ExtensionSAFE} {
		if _, err := os.Stat(service.ProductFilePath(dir, sourceID, ext)); err == nil {
			return true
		}
	}
	_, err := os.Stat(service.ProductFilePath(dir, sourceID, service.NoExtension))
	return err == nil
}

// CreateAOI implements InventoryBackend
func (b *Backend) CreateAOI(ctx context.Context, aoi string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	aoiDir := filepath.Join(b.workspace, aoi)
	if _, err := os.Stat(aoiDir); err == nil {
		return db.ErrAlreadyExists{Type: "aoi", ID: aoi}
	}
	for _, dir := range []string{aoiDir, filepath.Join(aoiDir, imagesDir), filepath.Join(aoiDir, quicklooksDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("CreateAOI: %w", err)
		}
	}
	return b.save(aoi, nil)
}

// AOIs implements InventoryBackend
func (b *Backend) AOIs(ctx context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, err := os.ReadDir(b.workspace)
	if err != nil {
		return nil, fmt.Errorf("AOIs: %w", err)
	}
	aois := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		aois = append(aois, entry.Name())
	}
	sort.Strings(aois)
	return aois, nil
}

// DeleteAOI implements InventoryBackend
func (b *Backend) DeleteAOI(ctx context.Context, aoi string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.RemoveAll(filepath.Join(b.workspace, aoi)); err != nil {
		return fmt.Errorf("DeleteAOI: %w", err)
	}
	return nil
}

// ProductsStatus implements InventoryBackend
func (b *Backend) ProductsStatus(ctx context.Context, aoi string) (db.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := db.Status{}
	products, err := b.load(aoi)
	if err != nil {
		return s, fmt.Errorf("ProductsStatus.%w", err)
	}
	counts := map[common.Status]int64{}
	for _, p := range products {
		counts[p.Status]++
	}
	for status, nb := range counts {
		s.Set(status, nb)
	}
	return s, nil
}

// CreateProduct implements InventoryBackend
func (b *Backend) CreateProduct(ctx context.Context, sourceID, aoi string, status common.Status, data common.ProductAttrs) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	products, err := b.load(aoi)
	if err != nil {
		return 0, fmt.Errorf("CreateProduct.%w", err)
	}
	for _, p := range products {
		if p.SourceID == sourceID {
			return 0, db.ErrAlreadyExists{Type: "product", ID: sourceID}
		}
	}
	// Ids must be unique across the whole workspace: Product and UpdateProduct
	// look the id up regardless of the AOI.
	id, err := b.nextIDLocked()
	if err != nil {
		return 0, fmt.Errorf("CreateProduct.%w", err)
	}
	product := db.Product{ID: id, Status: status}
	product.SourceID = sourceID
	product.AOI = aoi
	product.Data = data
	products = append(products, product)
	if err := b.save(aoi, products); err != nil {
		return 0, fmt.Errorf("CreateProduct.%w", err)
	}
	return id, nil
}

// Product implements InventoryBackend
func (b *Backend) Product(ctx context.Context, id int) (db.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	aois, err := b.aoisLocked()
	if err != nil {
		return db.Product{}, fmt.Errorf("Product.%w", err)
	}
	for _, aoi := range aois {
		products, err := b.load(aoi)
		if err != nil {
			return db.Product{}, fmt.Errorf("Product.%w", err)
		}
		for _, p := range products {
			if p.ID == id {
				return p, nil
			}
		}
	}
	return db.Product{}, db.ErrNotFound{Type: "product", ID: strconv.Itoa(id)}
}

// Products implements InventoryBackend
func (b *Backend) Products(ctx context.Context, aoi, status string, page, limit int) ([]db.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	all, err := b.load(aoi)
	if err != nil {
		return nil, fmt.Errorf("Products.%w", err)
	}
	products := make([]db.Product, 0, len(all))
	for _, p := range all {
		if status == "" || p.Status.String() == status {
			products = append(products, p)
		}
	}
	// Most recent acquisition first
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].Data.Date.After(products[j].Data.Date)
	})
	if limit > 0 {
		offset := page * limit
		if offset >= len(products) {
			return []db.Product{}, nil
		}
		if offset+limit > len(products) {
			return products[offset:], nil
		}
		return products[offset : offset+limit], nil
	}
	return products, nil
}

// UpdateProduct implements InventoryBackend
func (b *Backend) UpdateProduct(ctx context.Context, id int, status common.Status, message *string) error {
	return b.update(id, func(p *db.Product) {
		p.Status = status
		if message != nil {
			p.Message = *message
		}
	})
}

// UpdateProductAttrs implements InventoryBackend
func (b *Backend) UpdateProductAttrs(ctx context.Context, id int, data common.ProductAttrs) error {
	return b.update(id, func(p *db.Product) {
		p.Data = data
	})
}

// ProductID implements InventoryBackend
func (b *Backend) ProductID(ctx context.Context, aoi, sourceID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	products, err := b.load(aoi)
	if err != nil {
		return 0, fmt.Errorf("ProductID.%w", err)
	}
	for _, p := range products {
		if p.SourceID == sourceID {
			return p.ID, nil
		}
	}
	return 0, db.ErrNotFound{Type: "product", ID: sourceID}
}

func (b *Backend) update(id int, f func(*db.Product)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	aois, err := b.aoisLocked()
	if err != nil {
		return fmt.Errorf("update.%w", err)
	}
	for _, aoi := range aois {
		products, err := b.load(aoi)
		if err != nil {
			return fmt.Errorf("update.%w", err)
		}
		for i := range products {
			if products[i].ID == id {
				f(&products[i])
				if err := b.save(aoi, products); err != nil {
					return fmt.Errorf("update.%w", err)
				}
				return nil
			}
		}
	}
	return db.ErrNotFound{Type: "product", ID: strconv.Itoa(id)}
}

func (b *Backend) aoisLocked() ([]string, error) {
	entries, err := os.ReadDir(b.workspace)
	if err != nil {
		return nil, err
	}
	var aois []string
	for _, entry := range entries {
		if entry.IsDir() {
			aois = append(aois, entry.Name())
		}
	}
	return aois, nil
}

// nextIDLocked returns the workspace-wide next product id. Must be called with b.mu held.
func (b *Backend) nextIDLocked() (int, error) {
	aois, err := b.aoisLocked()
	if err != nil {
		return 0, fmt.Errorf("nextID: %w", err)
	}
	id := 0
	for _, aoi := range aois {
		products, err := b.load(aoi)
		if err != nil {
			var notFound db.ErrNotFound
			if errors.As(err, &notFound) {
				continue
			}
			return 0, fmt.Errorf("nextID.%w", err)
		}
		for _, p := range products {
			if p.ID > id {
				id = p.ID
			}
		}
	}
	return id + 1, nil
}

func (b *Backend) load(aoi string) ([]db.Product, error) {
	file, err := os.Open(filepath.Join(b.workspace, aoi, inventoryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, db.ErrNotFound{Type: "aoi", ID: aoi}
		}
		return nil, fmt.Errorf("load: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("load.ReadAll: %w", err)
	}
	var products []db.Product
	for i, record := range records {
		if i == 0 {
			continue // header
		}
		if len(record) != len(csvHeader) {
			return nil, fmt.Errorf("load: invalid record %d in %s", i, aoi)
		}
		p := db.Product{}
		if p.ID, err = strconv.Atoi(record[0]); err != nil {
			return nil, fmt.Errorf("load: invalid id %s: %w", record[0], err)
		}
		p.SourceID = record[1]
		p.AOI = aoi
		if p.Status, err = common.StatusString(record[2]); err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
		p.Message = record[3]
		if err := p.Data.Scan([]byte(record[4])); err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
		products = append(products, p)
	}
	return products, nil
}

func (b *Backend) save(aoi string, products []db.Product) error {
	path := filepath.Join(b.workspace, aoi, inventoryFile)
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	w := csv.NewWriter(file)
	records := [][]string{csvHeader}
	for _, p := range products {
		data, err := p.Data.Value()
		if err != nil {
			file.Close()
			return fmt.Errorf("save: %w", err)
		}
		records = append(records, []string{
			strconv.Itoa(p.ID), p.SourceID, p.Status.String(), p.Message, string(data.([]byte)),
		})
	}
	if err := w.WriteAll(records); err != nil {
		file.Close()
		return fmt.Errorf("save.WriteAll: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("save.Close: %w", err)
	}
	return os.Rename(tmp, path)
}
