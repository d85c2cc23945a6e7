package csvfile

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/geosat-ops/sentineldownloader/common"
	db "github.com/geosat-ops/sentineldownloader/interface/database"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestCreateAOI(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	if err := b.CreateAOI(ctx, "brittany"); err != nil {
		t.Fatal(err)
	}
	if err := b.CreateAOI(ctx, "brittany"); err == nil {
		t.Fatal("expected ErrAlreadyExists")
	} else if _, ok := err.(db.ErrAlreadyExists); !ok {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	for _, dir := range []string{b.ImagesDir("brittany"), b.QuicklooksDir("brittany")} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("expected directory %s", dir)
		}
	}

	aois, err := b.AOIs(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(aois) != 1 || aois[0] != "brittany" {
		t.Fatalf("unexpected aois %v", aois)
	}

	if err := b.DeleteAOI(ctx, "brittany"); err != nil {
		t.Fatal(err)
	}
	if aois, _ = b.AOIs(ctx, ""); len(aois) != 0 {
		t.Fatalf("unexpected aois %v", aois)
	}
}

func TestProductLifecycle(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	if err := b.CreateAOI(ctx, "brittany"); err != nil {
		t.Fatal(err)
	}

	attrs := func(day int) common.ProductAttrs {
		return common.ProductAttrs{
			UUID:          "uuid",
			Date:          time.Date(2021, 3, day, 10, 0, 0, 0, time.UTC),
			Constellation: common.Sentinel2,
			CloudCover:    7.5,
		}
	}

	idOld, err := b.CreateProduct(ctx, "S2A_OLD", "brittany", common.StatusNEW, attrs(1))
	if err != nil {
		t.Fatal(err)
	}
	idNew, err := b.CreateProduct(ctx, "S2A_NEW", "brittany", common.StatusNEW, attrs(20))
	if err != nil {
		t.Fatal(err)
	}
	if idOld == idNew {
		t.Fatal("ids must be unique")
	}
	if _, err := b.CreateProduct(ctx, "S2A_OLD", "brittany", common.StatusNEW, attrs(1)); err == nil {
		t.Fatal("expected ErrAlreadyExists")
	}

	// Most recent first
	products, err := b.Products(ctx, "brittany", "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 2 || products[0].SourceID != "S2A_NEW" {
		t.Fatalf("unexpected products %v", products)
	}
	if products[0].Data.CloudCover != 7.5 {
		t.Errorf("attrs did not survive the roundtrip: %v", products[0].Data)
	}

	// Update status
	msg := "download failed"
	if err := b.UpdateProduct(ctx, idOld, common.StatusFAILED, &msg); err != nil {
		t.Fatal(err)
	}
	p, err := b.Product(ctx, idOld)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != common.StatusFAILED || p.Message != msg {
		t.Errorf("unexpected product %v", p)
	}

	// Status counts
	status, err := b.ProductsStatus(ctx, "brittany")
	if err != nil {
		t.Fatal(err)
	}
	if status.New != 1 || status.Failed != 1 || status.Done != 0 {
		t.Errorf("unexpected status %v", status)
	}

	// Lookup by sourceID
	id, err := b.ProductID(ctx, "brittany", "S2A_NEW")
	if err != nil {
		t.Fatal(err)
	}
	if id != idNew {
		t.Errorf("expected %d, got %d", idNew, id)
	}
	if _, err := b.ProductID(ctx, "brittany", "S2A_MISSING"); err == nil {
		t.Fatal("expected ErrNotFound")
	} else if _, ok := err.(db.ErrNotFound); !ok {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProductIDsUniqueAcrossAOIs(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	for _, aoi := range []string{"alps", "brittany"} {
		if err := b.CreateAOI(ctx, aoi); err != nil {
			t.Fatal(err)
		}
	}

	idAlps, err := b.CreateProduct(ctx, "S2A_ALPS", "alps", common.StatusNEW, common.ProductAttrs{})
	if err != nil {
		t.Fatal(err)
	}
	idBrittany, err := b.CreateProduct(ctx, "S2A_BRITTANY", "brittany", common.StatusNEW, common.ProductAttrs{})
	if err != nil {
		t.Fatal(err)
	}
	if idAlps == idBrittany {
		t.Fatalf("ids must be unique across AOIs, got %d twice", idAlps)
	}

	// Updating one AOI must not touch the other one
	if err := b.UpdateProduct(ctx, idBrittany, common.StatusDONE, nil); err != nil {
		t.Fatal(err)
	}
	p, err := b.Product(ctx, idBrittany)
	if err != nil {
		t.Fatal(err)
	}
	if p.AOI != "brittany" || p.Status != common.StatusDONE {
		t.Fatalf("unexpected product %v", p)
	}
	p, err = b.Product(ctx, idAlps)
	if err != nil {
		t.Fatal(err)
	}
	if p.AOI != "alps" || p.Status != common.StatusNEW {
		t.Fatalf("unexpected product %v", p)
	}
}

func TestProductsPaging(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	if err := b.CreateAOI(ctx, "area"); err != nil {
		t.Fatal(err)
	}
	for day := 1; day <= 5; day++ {
		if _, err := b.CreateProduct(ctx, "S2A_"+string(rune('A'+day)), "area", common.StatusNEW,
			common.ProductAttrs{Date: time.Date(2021, 3, day, 0, 0, 0, 0, time.UTC)}); err != nil {
			t.Fatal(err)
		}
	}
	page0, err := b.Products(ctx, "area", "", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	page2, err := b.Products(ctx, "area", "", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page0) != 2 || len(page2) != 1 {
		t.Fatalf("unexpected pages %d/%d", len(page0), len(page2))
	}
	if empty, _ := b.Products(ctx, "area", "", 5, 2); len(empty) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty))
	}
}

func TestIsDownloaded(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	if err := b.CreateAOI(ctx, "area"); err != nil {
		t.Fatal(err)
	}
	if b.IsDownloaded("area", "S2A_PRODUCT") {
		t.Fatal("product must not be reported as downloaded")
	}
	if err := os.WriteFile(b.ImagesDir("area")+"/S2A_PRODUCT.zip", []byte("zip"), 0644); err != nil {
		t.Fatal(err)
	}
	if !b.IsDownloaded("area", "S2A_PRODUCT") {
		t.Fatal("product must be reported as downloaded")
	}
}
