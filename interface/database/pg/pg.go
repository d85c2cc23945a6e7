package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/geosat-ops/sentineldownloader/common"
	db "github.com/geosat-ops/sentineldownloader/interface/database"
)

// pgInterface allows to use either a sql.DB or a sql.Tx
type pgInterface interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// BackendTx implements InventoryTxBackend
type BackendTx struct {
	*sql.Tx
	Backend
}

// BackendDB implements InventoryDBBackend
type BackendDB struct {
	*sql.DB
	Backend
}

// Backend implements InventoryBackend
type Backend struct {
	pgInterface
}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError             = "00000"
	connectionFailure   = "08006"
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

// StartTransaction implements InventoryDBBackend
func (bdb BackendDB) StartTransaction(ctx context.Context) (db.InventoryTxBackend, error) {
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return BackendTx{}, err
	}
	return BackendTx{tx, Backend{pgInterface: tx}}, nil
}

// Rollback overloads sql.Tx.Rollback to be idempotent
func (btx BackendTx) Rollback() error {
	err := btx.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// New creates a new backend using Postgres
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	sqldb, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	return &BackendDB{sqldb, Backend{pgInterface: sqldb}}, nil
}

// CreateAOI implements InventoryBackend
func (b Backend) CreateAOI(ctx context.Context, aoi string) error {
	_, err := b.ExecContext(ctx, "insert into aoi(id) values($1)", aoi)
	switch pqErrorCode(err) {
	case noError:
		return nil
	case uniqueViolation:
		return db.ErrAlreadyExists{Type: "aoi", ID: aoi}
	default:
		return fmt.Errorf("CreateAOI.exec: %w", err)
	}
}

// AOIs implements InventoryBackend
func (b Backend) AOIs(ctx context.Context, pattern string) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if pattern == "" {
		rows, err = b.QueryContext(ctx, "select id from aoi ORDER BY id")
	} else {
		pattern = strings.ReplaceAll(strings.ReplaceAll(strings.ReplaceAll(strings.ReplaceAll(pattern, "_", "\\_"), "%", "\\%"), "*", "%"), "?", "_")
		rows, err = b.QueryContext(ctx, "select id from aoi where id LIKE $1 ORDER BY id", pattern)
	}

	if err != nil {
		return nil, fmt.Errorf("aois.QueryContext: %w", err)
	}
	defer rows.Close()
	aois := make([]string, 0)
	for rows.Next() {
		var aoi string
		if err := rows.Scan(&aoi); err != nil {
			return nil, fmt.Errorf("aois.Scan: %w", err)
		}
		aois = append(aois, aoi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aois.rows.err: %w", err)
	}
	return aois, nil
}

// DeleteAOI implements InventoryBackend
func (b Backend) DeleteAOI(ctx context.Context, aoi string) error {
	if _, err := b.ExecContext(ctx, "delete from aoi where id = $1", aoi); err != nil {
		return fmt.Errorf("DeleteAOI.exec: %w", err)
	}
	return nil
}

// ProductsStatus implements InventoryBackend
func (b Backend) ProductsStatus(ctx context.Context, aoi string) (db.Status, error) {
	s := db.Status{}
	rows, err := b.QueryContext(ctx, "select status, count(status) from product where aoi_id=$1 group by status", aoi)
	if err != nil {
		return s, fmt.Errorf("ProductsStatus.QueryContext: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status common.Status
		var nb int64
		if err := rows.Scan(&status, &nb); err != nil {
			return s, fmt.Errorf("ProductsStatus.Scan: %w", err)
		}
		s.Set(status, nb)
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("ProductsStatus.rows.err: %w", err)
	}
	return s, nil
}

// CreateProduct implements InventoryBackend
func (b Backend) CreateProduct(ctx context.Context, sourceID, aoi string, status common.Status, data common.ProductAttrs) (int, error) {
	id := 0
	err := b.QueryRowContext(ctx, "insert into product(source_id,aoi_id,status,data) values($1,$2,$3,$4) returning id",
		sourceID, aoi, status, data).Scan(&id)
	switch pqErrorCode(err) {
	case noError:
		return id, nil
	case uniqueViolation:
		return 0, db.ErrAlreadyExists{Type: "product", ID: sourceID}
	default:
		return 0, fmt.Errorf("CreateProduct: %w", err)
	}
}

// Product implements InventoryBackend
func (b Backend) Product(ctx context.Context, id int) (db.Product, error) {
	product := db.Product{}
	product.ID = id
	if err := b.QueryRowContext(ctx, "select source_id,aoi_id,status,message,data from product where id=$1", id).Scan(
		&product.SourceID, &product.AOI, &product.Status, &product.Message, &product.Data); err != nil {
		if err == sql.ErrNoRows {
			return product, db.ErrNotFound{Type: "product", ID: fmt.Sprintf("%d", id)}
		}
		return product, fmt.Errorf("Product.QueryRowContext: %w", err)
	}
	return product, nil
}

// Products implements InventoryBackend
func (b Backend) Products(ctx context.Context, aoi, status string, page, limit int) ([]db.Product, error) {
	products := make([]db.Product, 0)
	query := "select id,source_id,status,message,data from product where aoi_id=$1"
	args := []interface{}{aoi}
	if status != "" {
		query += " and status=$2"
		args = append(args, status)
	}
	query += " ORDER BY (data->>'date') DESC"
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}
	if page > 0 {
		query += " OFFSET " + strconv.Itoa(page*limit)
	}
	rows, err := b.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("products.QueryContext: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p := db.Product{}
		p.AOI = aoi
		if err := rows.Scan(&p.ID, &p.SourceID, &p.Status, &p.Message, &p.Data); err != nil {
			return nil, fmt.Errorf("products.Scan: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("products.rows.err: %w", err)
	}
	return products, nil
}

// UpdateProduct implements InventoryBackend
func (b Backend) UpdateProduct(ctx context.Context, id int, status common.Status, message *string) error {
	var err error
	if message != nil {
		_, err = b.ExecContext(ctx, "update product set status=$1, message=$2 where id=$3", status, *message, id)
	} else {
		_, err = b.ExecContext(ctx, "update product set status=$1 where id=$2", status, id)
	}
	if err != nil {
		return fmt.Errorf("updateProduct: %w", err)
	}
	return nil
}

// UpdateProductAttrs implements InventoryBackend
func (b Backend) UpdateProductAttrs(ctx context.Context, id int, data common.ProductAttrs) error {
	if _, err := b.ExecContext(ctx, "update product set data=$1 where id=$2", data, id); err != nil {
		return fmt.Errorf("updateProductAttrs: %w", err)
	}
	return nil
}

// ProductID implements InventoryBackend
func (b Backend) ProductID(ctx context.Context, aoi, sourceID string) (int, error) {
	id := 0
	if err := b.QueryRowContext(ctx, "select id from product where aoi_id=$1 and source_id=$2", aoi, sourceID).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, db.ErrNotFound{Type: "product", ID: sourceID}
		}
		return 0, fmt.Errorf("ProductID.QueryRowContext: %w", err)
	}
	return id, nil
}
