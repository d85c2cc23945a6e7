package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/service"
)

// GSImageProvider implements ImageProvider for Google Storage Sentinel1 and Sentinel2 buckets
type GSImageProvider struct {
	buckets map[common.Constellation][]string
	public  bool // use unauthenticated access (public buckets)
}

// Name implements ImageProvider
func (ip *GSImageProvider) Name() string {
	return "GoogleStorage"
}

// NewGSImageProvider creates a new ImageProvider from Google Storage Sentinel1 and Sentinel2 buckets
func NewGSImageProvider(public bool) *GSImageProvider {
	return &GSImageProvider{buckets: map[common.Constellation][]string{}, public: public}
}

// AddBucket to the provider
// constellation must be one of sentinel1, sentinel-1, sentinel2, sentinel-2
// bucket can contain several {IDENTIFIER} that will be replaced according to the information found in the product name
// IDENTIFIER must be one of SCENE, MISSION_ID, PRODUCT_LEVEL, DATE(YEAR/MONTH/DAY), TIME(HOUR/MINUTE/SECOND), PDGS, ORBIT, TILE (UTM_ZONE/LATITUDE_BAND/GRID_SQUARE)
func (ip *GSImageProvider) AddBucket(constellation, bucket string) error {
	switch common.GetConstellationFromString(constellation) {
	case common.Sentinel1:
		ip.buckets[common.Sentinel1] = append(ip.buckets[common.Sentinel1], bucket)
	case common.Sentinel2:
		ip.buckets[common.Sentinel2] = append(ip.buckets[common.Sentinel2], bucket)
	default:
		return fmt.Errorf("GSImageProvider: constellation not supported")
	}
	return nil
}

func (ip *GSImageProvider) newClient(ctx context.Context) (*storage.Client, error) {
	if ip.public {
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	return storage.NewClient(ctx)
}

// parseGsURI splits gs://bucket/path/to/object into bucket and object
func parseGsURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	if trimmed == uri {
		return "", "", fmt.Errorf("parseGsURI: not a gs:// uri: %s", uri)
	}
	splits := strings.SplitN(trimmed, "/", 2)
	if len(splits) != 2 || splits[0] == "" {
		return "", "", fmt.Errorf("parseGsURI: missing bucket or object: %s", uri)
	}
	return splits[0], splits[1], nil
}

// findBlob finds the first blob that matches the url pattern ("*" and "?" wildcards)
func (ip *GSImageProvider) findBlob(ctx context.Context, url string) (string, error) {
	bucket, blob, err := parseGsURI(url)
	if err != nil {
		return "", err
	}
	gsClient, err := ip.newClient(ctx)
	if err != nil {
		return "", err
	}
	defer gsClient.Close()

	blobRe := strings.ReplaceAll(strings.ReplaceAll(regexp.QuoteMeta(blob), "\\*", ".*"), "\\?", ".")
	re, err := regexp.Compile(blobRe)
	if err != nil {
		return "", fmt.Errorf("compile[%s]: %w", blobRe, err)
	}
	if i := strings.Index(blob, "*"); i != -1 {
		blob = blob[:i]
	}
	it := gsClient.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: blob})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", fmt.Errorf("list[%s/%s*]: %w", bucket, blob, err)
		}
		if idx := re.FindIndex([]byte(attrs.Name)); idx != nil && idx[0] == 0 {
			return "gs://" + bucket + "/" + attrs.Name[:idx[1]], nil
		}
	}
	return url, ErrProductNotFound{url}
}

// Download implements ImageProvider
func (ip *GSImageProvider) Download(ctx context.Context, product common.Product, localDir string) error {
	productName := product.SourceID
	constellation := common.GetConstellationFromProductID(productName)
	buckets, ok := ip.buckets[constellation]
	if constellation == common.Unknown || !ok {
		return fmt.Errorf("GSImageProvider: constellation not supported")
	}
	format, err := common.Info(productName)
	if err != nil {
		return fmt.Errorf("GSImageProvider: %w", err)
	}

	for _, bucket := range buckets {
		url := common.FormatBrackets(bucket, format)
		if strings.Contains(url, "*") {
			if url, err = ip.findBlob(ctx, url); err != nil {
				return fmt.Errorf("GSImageProvider: %w", err)
			}
		}
		e := func() error {
			if filepath.Ext(url) == "."+string(service.ExtensionZIP) {
				if err := ip.downloadZip(ctx, url, localDir); err != nil {
					return fmt.Errorf("GSImageProvider[%s].%w", url, err)
				}
			} else if files, err := ip.downloadDirectory(ctx, url, filepath.Join(localDir, filepath.Base(url))); err != nil {
				return fmt.Errorf("GSImageProvider[%s].%w", url, err)
			} else if len(files) == 0 {
				return fmt.Errorf("GSImageProvider[%s]: not found", url)
			}
			return nil
		}()

		if err = service.MergeErrors(false, err, e); err == nil {
			break
		}
	}
	return err
}

// downloadToFile fetches a single object to the given local path
func downloadToFile(ctx context.Context, client *storage.Client, bucket, object, localPath string) error {
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("downloadToFile[%s/%s].NewReader: %w", bucket, object, err)
	}
	defer r.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("downloadToFile.Create: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		return fmt.Errorf("downloadToFile[%s/%s].Copy: %w", bucket, object, err)
	}
	return nil
}

// downloadDirectory fetches all objects prefixed by uri to destination
// It returns the list of absolute filenames that were created (i.e with the destination prefix)
func (ip *GSImageProvider) downloadDirectory(ctx context.Context, uri string, dstDir string) (files []string, err error) {
	defer func() {
		if err != nil {
			err = service.MakeTemporary(err)
		}
	}()

	bucket, prefix, err := parseGsURI(uri)
	if err != nil {
		return nil, fmt.Errorf("downloadDirectory: %w", err)
	}
	prefix = strings.TrimRight(prefix, "/")
	if dstDir == "" {
		dstDir, err = os.MkdirTemp("", "gcs")
		if err != nil {
			return nil, fmt.Errorf("os.MkdirTemp: %w", err)
		}
	}

	client, err := ip.newClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var objects []gsObject
	q := &storage.Query{Prefix: prefix, Versions: false}
	q.SetAttrSelection([]string{"Name"})
	it := client.Bucket(bucket).Objects(ctx, q)
	for {
		objectAttrs, iterr := it.Next()
		if iterr == iterator.Done {
			break
		}
		if iterr != nil {
			return nil, fmt.Errorf("bucket iterate: %w", iterr)
		}
		filename := objectAttrs.Name
		if strings.HasPrefix(objectAttrs.Name, prefix) {
			filename = objectAttrs.Name[len(prefix):]
		}
		if len(filename) > 0 && filename[len(filename)-1] == '/' {
			continue
		}
		dirname := filepath.Join(dstDir, filepath.Dir(filename))
		if ferr := os.MkdirAll(dirname, 0766); ferr != nil {
			return nil, fmt.Errorf("mkdirall %s: %w", dirname, ferr)
		}
		objects = append(objects, gsObject{
			bucket: bucket,
			object: objectAttrs.Name,
			file:   filepath.Join(dstDir, filename),
		})
	}

	return downloadObjects(ctx, objects, func(ctx context.Context, o gsObject) error {
		return downloadToFile(ctx, client, o.bucket, o.object, o.file)
	})
}

type gsObject struct {
	bucket, object string
	file           string
}

// downloadObjects fans the downloads out to a pool of workers.
// The first error cancels the pool and is returned.
func downloadObjects(ctx context.Context, objects []gsObject, download func(context.Context, gsObject) error) ([]string, error) {
	jobs := make(chan gsObject)
	wg, wgCtx := errgroup.WithContext(ctx)
	var filemu sync.Mutex
	var files []string
	for range 5 {
		wg.Go(func() error {
			for o := range jobs {
				if err := download(wgCtx, o); err != nil {
					return err
				}
				filemu.Lock()
				files = append(files, o.file)
				filemu.Unlock()
			}
			return nil
		})
	}
	wg.Go(func() error {
		defer close(jobs)
		for _, o := range objects {
			select {
			case jobs <- o:
			case <-wgCtx.Done():
				return wgCtx.Err()
			}
		}
		return nil
	})
	if err := wg.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// downloadZip to destination
func (ip *GSImageProvider) downloadZip(ctx context.Context, uri string, dstDir string) error {
	bucket, object, err := parseGsURI(uri)
	if err != nil {
		return fmt.Errorf("downloadZip: %w", err)
	}
	client, err := ip.newClient(ctx)
	if err != nil {
		return fmt.Errorf("downloadZip.NewClient: %w", err)
	}
	defer client.Close()

	localZip := filepath.Join(dstDir, filepath.Base(uri))
	if err := downloadToFile(ctx, client, bucket, object, localZip); err != nil {
		return fmt.Errorf("downloadZip.%w", err)
	}
	defer os.Remove(localZip)
	if err := unarchive(localZip, dstDir); err != nil {
		return service.MakeTemporary(fmt.Errorf("downloadZip.Unarchive: %w", err))
	}
	return nil
}
