package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/interface/provider"
	"github.com/geosat-ops/sentineldownloader/service"
	"github.com/geosat-ops/sentineldownloader/service/log"
)

// Task tracks the download of one product.
// Its status only moves forward: PENDING -> INPROGRESS -> DONE|FAILED.
type Task struct {
	Product common.Product

	mu      sync.Mutex
	status  common.Status
	message string
}

func newTask(product common.Product) *Task {
	return &Task{Product: product, status: common.StatusPENDING}
}

// Status returns the current status of the task
func (t *Task) Status() common.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Message returns the failure message of the task, if any
func (t *Task) Message() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

func (t *Task) setStatus(status common.Status, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.CanTransition(status) {
		return
	}
	t.status = status
	if message != "" {
		t.message = message
	}
}

// Coordinator downloads batches of products with a bounded number of simultaneous transfers
type Coordinator struct {
	ImageProviders []provider.ImageProvider
	MaxConcurrent  int

	// OnUpdate, if not nil, is called after each task status change
	OnUpdate func(task *Task)
}

// DownloadProduct downloads a product with the first successful image provider.
// The product is first fetched into a temporary directory, then moved to localDir.
func (c *Coordinator) DownloadProduct(ctx context.Context, product common.Product, localDir string) error {
	// Working dir
	workdir := filepath.Join(localDir, "tmp-"+uuid.New().String())

	if err := os.MkdirAll(workdir, 0766); err != nil {
		return service.MakeFatal(fmt.Errorf("make directory %s: %w", workdir, err))
	}
	defer os.RemoveAll(workdir)

	// Download with the first successful imageProvider
	log.Logger(ctx).Sugar().Infof("downloading %s", product.SourceID)
	var err error
	for _, imageProvider := range c.ImageProviders {
		e := imageProvider.Download(ctx, product, workdir)
		if err = service.MergeErrors(false, err, e); err == nil {
			break
		}
		log.Logger(ctx).Sugar().Warnf("%v", e)
	}
	if err != nil {
		return fmt.Errorf("DownloadProduct.ImageProviders.%w", err)
	}

	// Move the downloaded files to their destination
	entries, err := os.ReadDir(workdir)
	if err != nil {
		return service.MakeFatal(fmt.Errorf("DownloadProduct.ReadDir: %w", err))
	}
	for _, entry := range entries {
		if err := os.Rename(filepath.Join(workdir, entry.Name()), filepath.Join(localDir, entry.Name())); err != nil {
			return service.MakeFatal(fmt.Errorf("DownloadProduct.Rename: %w", err))
		}
	}
	return nil
}

// DownloadAll downloads the products to localDir, running at most MaxConcurrent transfers at a time.
// A failed download does not prevent the others: the per-product outcome is recorded in the returned
// tasks, which are all in a terminal state.
// DownloadAll returns an error if the destination is not writable, on the first fatal error
// (e.g. authentication failure) or if the context is cancelled. Cancellation stops the admission
// of new tasks, the transfers already started run to completion.
func (c *Coordinator) DownloadAll(ctx context.Context, products []common.Product, localDir string) ([]*Task, error) {
	if err := checkWritable(localDir); err != nil {
		return nil, fmt.Errorf("DownloadAll.%w", err)
	}

	maxConcurrent := c.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	tasks := make([]*Task, len(products))
	for i, product := range products {
		tasks[i] = newTask(product)
	}

	var fatalMu sync.Mutex
	var fatalErr error
	setFatal := func(err error) {
		fatalMu.Lock()
		defer fatalMu.Unlock()
		if fatalErr == nil {
			fatalErr = err
		}
	}
	getFatal := func() error {
		fatalMu.Lock()
		defer fatalMu.Unlock()
		return fatalErr
	}

	// In-flight transfers are not aborted by the cancellation
	downloadCtx := context.WithoutCancel(ctx)

	wg := errgroup.Group{}
	wg.SetLimit(maxConcurrent)
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			c.finalize(task, common.StatusFAILED, fmt.Sprintf("not started: %v", err))
			continue
		}
		if err := getFatal(); err != nil {
			c.finalize(task, common.StatusFAILED, fmt.Sprintf("not started: %v", err))
			continue
		}
		task := task
		wg.Go(func() error {
			c.finalize(task, common.StatusINPROGRESS, "")
			if err := c.DownloadProduct(downloadCtx, task.Product, localDir); err != nil {
				c.finalize(task, common.StatusFAILED, err.Error())
				if service.Fatal(err) {
					setFatal(err)
				}
				return nil
			}
			c.finalize(task, common.StatusDONE, "")
			return nil
		})
	}
	wg.Wait()

	if err := getFatal(); err != nil {
		return tasks, fmt.Errorf("DownloadAll.%w", err)
	}
	if err := ctx.Err(); err != nil {
		return tasks, fmt.Errorf("DownloadAll: %w", err)
	}
	return tasks, nil
}

func (c *Coordinator) finalize(task *Task, status common.Status, message string) {
	task.setStatus(status, message)
	if c.OnUpdate != nil {
		c.OnUpdate(task)
	}
}

// checkWritable probes the destination directory
func checkWritable(localDir string) error {
	if err := os.MkdirAll(localDir, 0766); err != nil {
		return service.MakeFatal(fmt.Errorf("make directory %s: %w", localDir, err))
	}
	probe := filepath.Join(localDir, ".probe-"+uuid.New().String())
	if err := os.WriteFile(probe, nil, 0644); err != nil {
		return service.MakeFatal(fmt.Errorf("destination not writable %s: %w", localDir, err))
	}
	os.Remove(probe)
	return nil
}
