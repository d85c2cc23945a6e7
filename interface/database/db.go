package db

import (
	"context"
	"fmt"

	"github.com/geosat-ops/sentineldownloader/common"
)

// Product is an inventory entry
type Product struct {
	common.Product
	ID      int           `json:"id"`
	Status  common.Status `json:"status"`
	Message string        `json:"message"`
}

type ErrAlreadyExists struct {
	Type, ID string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Type, e.ID)
}

type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

type Status struct {
	New, Pending, InProgress, Done, Failed int64
}

// Set the number of occurrences for a given status
func (s *Status) Set(status common.Status, nb int64) {
	switch status {
	case common.StatusNEW:
		s.New = nb
	case common.StatusPENDING:
		s.Pending = nb
	case common.StatusINPROGRESS:
		s.InProgress = nb
	case common.StatusDONE:
		s.Done = nb
	case common.StatusFAILED:
		s.Failed = nb
	}
}

type InventoryTxBackend interface {
	InventoryBackend
	// Must be called to apply transaction
	Commit() error
	// Might be called to cancel the transaction (no effect if commit has already been done)
	Rollback() error
}

type InventoryDBBackend interface {
	InventoryBackend
	StartTransaction(ctx context.Context) (InventoryTxBackend, error)
}

type InventoryBackend interface {
	// Create an AOI in database, may return ErrAlreadyExists
	CreateAOI(ctx context.Context, aoi string) error
	// AOIs returns the list of the aois fitting the pattern
	// pattern [optional=""] aoi_pattern
	AOIs(ctx context.Context, pattern string) ([]string, error)
	// Delete an AOI from the database
	DeleteAOI(ctx context.Context, aoi string) error

	// Returns the status of the products of the aoi
	ProductsStatus(ctx context.Context, aoi string) (Status, error)
	// Create a new product, returning its id, may return ErrAlreadyExists
	CreateProduct(ctx context.Context, sourceID, aoi string, status common.Status, data common.ProductAttrs) (int, error)
	// Get product with the given id, may return ErrNotFound
	Product(ctx context.Context, id int) (Product, error)
	// List products of the given AOI, by status if status != ""
	Products(ctx context.Context, aoi, status string, page, limit int) ([]Product, error)
	// Update product status & message (if != nil)
	UpdateProduct(ctx context.Context, id int, status common.Status, message *string) error
	// Update product data
	UpdateProductAttrs(ctx context.Context, id int, data common.ProductAttrs) error
	// Returns the id of a product. May return ErrNotFound
	ProductID(ctx context.Context, aoi, sourceID string) (int, error)
}

// UnitOfWork runs a function and commit the database at the end or rollback if the function returns an error
func UnitOfWork(ctx context.Context, db InventoryDBBackend, f func(tx InventoryTxBackend) error) (err error) {
	// Start transaction
	txn, err := db.StartTransaction(ctx)
	if err != nil {
		return fmt.Errorf("uow.starttransaction: %w", err)
	}

	// Rollback if not successful
	defer func() {
		if e := txn.Rollback(); err == nil {
			err = e
		}
	}()

	// Execute function
	if err = f(txn); err != nil {
		return fmt.Errorf("uow.%w", err)
	}

	return txn.Commit()
}
