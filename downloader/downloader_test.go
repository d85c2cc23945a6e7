package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/interface/provider"
	"github.com/geosat-ops/sentineldownloader/service"
)

func providerList(ps ...provider.ImageProvider) []provider.ImageProvider { return ps }

// fakeProvider writes <sourceID>.zip into localDir, tracking the number of simultaneous calls
type fakeProvider struct {
	delay    time.Duration
	failing  map[string]error
	inflight int32
	peak     int32
	calls    int32
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Download(ctx context.Context, product common.Product, localDir string) error {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err, ok := f.failing[product.SourceID]; ok {
		return err
	}
	return os.WriteFile(filepath.Join(localDir, product.SourceID+".zip"), []byte("zip"), 0644)
}

func products(n int) []common.Product {
	ps := make([]common.Product, n)
	for i := range ps {
		ps[i] = common.Product{SourceID: fmt.Sprintf("S2A_PRODUCT_%d", i)}
	}
	return ps
}

func checkAllTerminal(t *testing.T, tasks []*Task) {
	t.Helper()
	for _, task := range tasks {
		if !task.Status().Terminal() {
			t.Errorf("task %s is not terminal: %s", task.Product.SourceID, task.Status())
		}
	}
}

func TestDownloadAll(t *testing.T) {
	dir := t.TempDir()
	provider := &fakeProvider{delay: 10 * time.Millisecond}
	c := &Coordinator{ImageProviders: providerList(provider), MaxConcurrent: 2}

	tasks, err := c.DownloadAll(context.Background(), products(5), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(tasks))
	}
	checkAllTerminal(t, tasks)
	for _, task := range tasks {
		if task.Status() != common.StatusDONE {
			t.Errorf("task %s: expected DONE, got %s", task.Product.SourceID, task.Status())
		}
		if _, err := os.Stat(filepath.Join(dir, task.Product.SourceID+".zip")); err != nil {
			t.Errorf("missing downloaded file for %s", task.Product.SourceID)
		}
	}
	if peak := atomic.LoadInt32(&provider.peak); peak > 2 {
		t.Errorf("expected at most 2 simultaneous transfers, observed %d", peak)
	}
}

func TestDownloadAllIsolatesFailures(t *testing.T) {
	provider := &fakeProvider{failing: map[string]error{"S2A_PRODUCT_2": errors.New("corrupted archive")}}
	c := &Coordinator{ImageProviders: providerList(provider), MaxConcurrent: 3}

	tasks, err := c.DownloadAll(context.Background(), products(5), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	checkAllTerminal(t, tasks)
	done, failed := 0, 0
	for _, task := range tasks {
		switch task.Status() {
		case common.StatusDONE:
			done++
		case common.StatusFAILED:
			failed++
			if task.Product.SourceID != "S2A_PRODUCT_2" {
				t.Errorf("unexpected failed task %s", task.Product.SourceID)
			}
			if task.Message() == "" {
				t.Error("failed task must carry a message")
			}
		}
	}
	if done != 4 || failed != 1 {
		t.Errorf("expected 4 done / 1 failed, got %d/%d", done, failed)
	}
}

func TestDownloadAllStopsOnFatalError(t *testing.T) {
	provider := &fakeProvider{failing: map[string]error{
		"S2A_PRODUCT_0": service.ErrUnauthorized{Provider: "fake"},
	}}
	c := &Coordinator{ImageProviders: providerList(provider), MaxConcurrent: 1}

	tasks, err := c.DownloadAll(context.Background(), products(4), t.TempDir())
	if err == nil {
		t.Fatal("expected a fatal error")
	}
	checkAllTerminal(t, tasks)
	if tasks[0].Status() != common.StatusFAILED {
		t.Errorf("expected the first task to be FAILED, got %s", tasks[0].Status())
	}
	// With a single worker, the fatal error stops the admission of the remaining tasks
	if calls := atomic.LoadInt32(&provider.calls); calls >= 4 {
		t.Errorf("expected the admission to stop, %d transfers started", calls)
	}
}

func TestDownloadAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &fakeProvider{}
	c := &Coordinator{ImageProviders: providerList(provider), MaxConcurrent: 2}
	tasks, err := c.DownloadAll(ctx, products(3), t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	checkAllTerminal(t, tasks)
	for _, task := range tasks {
		if task.Status() != common.StatusFAILED {
			t.Errorf("task %s: expected FAILED, got %s", task.Product.SourceID, task.Status())
		}
	}
	if calls := atomic.LoadInt32(&provider.calls); calls != 0 {
		t.Errorf("expected no transfer to start, got %d", calls)
	}
}

func TestDownloadAllDestinationNotWritable(t *testing.T) {
	// a file cannot be used as a destination directory
	dest := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(dest, []byte("file"), 0644); err != nil {
		t.Fatal(err)
	}

	c := &Coordinator{ImageProviders: providerList(&fakeProvider{}), MaxConcurrent: 2}
	if _, err := c.DownloadAll(context.Background(), products(2), dest); err == nil {
		t.Fatal("expected an error for a non-writable destination")
	}
}

func TestDownloadProductProviderFallback(t *testing.T) {
	dir := t.TempDir()
	failing := &fakeProvider{failing: map[string]error{"S2A_PRODUCT_0": service.MakeTemporary(errors.New("http status 503"))}}
	working := &fakeProvider{}
	c := &Coordinator{ImageProviders: providerList(failing, working)}

	if err := c.DownloadProduct(context.Background(), common.Product{SourceID: "S2A_PRODUCT_0"}, dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "S2A_PRODUCT_0.zip")); err != nil {
		t.Error("missing downloaded file")
	}
	// the temporary directory is cleaned up
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry in %s, got %d", dir, len(entries))
	}
}

func TestTaskStatusForwardOnly(t *testing.T) {
	task := newTask(common.Product{SourceID: "S2A_PRODUCT_0"})
	task.setStatus(common.StatusINPROGRESS, "")
	task.setStatus(common.StatusDONE, "")
	// a terminal task does not move anymore
	task.setStatus(common.StatusFAILED, "late failure")
	if task.Status() != common.StatusDONE {
		t.Errorf("expected DONE, got %s", task.Status())
	}
	if task.Message() != "" {
		t.Errorf("unexpected message %q", task.Message())
	}
}
