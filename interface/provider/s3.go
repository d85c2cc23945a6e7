package provider

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/geosat-ops/sentineldownloader/common"
)

const (
	sentinelAwsBucket         = "sentinel-s2-l1c"
	sentinelAwsPrefixTemplate = "tiles/%s/%s/%s/%s/%s/%s/0/"
	sentinelAwsRegion         = "eu-central-1"
)

// SentinelAwsImageProvider implements ImageProvider for the Sentinel2 AWS open data bucket (requester pays)
type SentinelAwsImageProvider struct {
	accessKeyID     string
	secretAccessKey string
}

// Name implements ImageProvider
func (ip *SentinelAwsImageProvider) Name() string {
	return "SentinelAws"
}

// NewSentinelAwsImageProvider creates a new ImageProvider from the Sentinel2 AWS open data bucket
func NewSentinelAwsImageProvider(accessKeyID, secretAccessKey string) *SentinelAwsImageProvider {
	return &SentinelAwsImageProvider{accessKeyID, secretAccessKey}
}

// Download implements ImageProvider
func (ip *SentinelAwsImageProvider) Download(ctx context.Context, product common.Product, localDir string) error {
	productName := product.SourceID
	switch common.GetConstellationFromProductID(productName) {
	case common.Sentinel2:
	default:
		return fmt.Errorf("SentinelAwsImageProvider: constellation not supported")
	}

	info, err := common.Info(productName)
	if err != nil {
		return fmt.Errorf("SentinelAwsImageProvider.common.Info: %w", err)
	}

	// The bucket layout uses non-padded month and day
	month, err := strconv.Atoi(info["MONTH"])
	if err != nil {
		return fmt.Errorf("SentinelAwsImageProvider: invalid month in %s", productName)
	}
	day, err := strconv.Atoi(info["DAY"])
	if err != nil {
		return fmt.Errorf("SentinelAwsImageProvider: invalid day in %s", productName)
	}

	sentinelAwsPrefix := fmt.Sprintf(sentinelAwsPrefixTemplate,
		info["UTM_ZONE"], info["LATITUDE_BAND"], info["GRID_SQUARE"],
		info["YEAR"], strconv.Itoa(month), strconv.Itoa(day))

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ip.accessKeyID, ip.secretAccessKey, "")),
		config.WithRegion(sentinelAwsRegion),
	)
	if err != nil {
		return fmt.Errorf("SentinelAwsImageProvider config.LoadDefaultConfig: %w", err)
	}

	// Create an Amazon S3 service client
	client := s3.NewFromConfig(cfg)

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 10 * 1024 * 1024 // 10MB per part
	})

	paginator := s3.NewListObjectsV2Paginator(client,
		&s3.ListObjectsV2Input{
			Bucket:       aws.String(sentinelAwsBucket),
			Prefix:       aws.String(sentinelAwsPrefix),
			RequestPayer: "requester",
		},
		func(o *s3.ListObjectsV2PaginatorOptions) {
			o.Limit = 200 // more than the typical number of files in a granule
		},
	)

	// create product directory
	productDir := path.Join(localDir, productName+"."+"SAFE")
	if err := os.MkdirAll(productDir, 0755); err != nil {
		return fmt.Errorf("SentinelAwsImageProvider os.MkdirAll: %w", err)
	}

	found := false
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("SentinelAwsImageProvider paginator.NextPage: %w", err)
		}

		for _, object := range page.Contents {
			found = true
			objectKey := aws.ToString(object.Key)
			objectFileName := objectKey[strings.LastIndex(objectKey, "/")+1:]
			localFilePath := path.Join(productDir, objectFileName)

			if err := downloadSingleObjectToFile(downloader, ctx, sentinelAwsBucket, objectKey, localFilePath); err != nil {
				return fmt.Errorf("SentinelAwsImageProvider.%w", err)
			}
		}
	}
	if !found {
		return ErrProductNotFound{productName}
	}

	return nil
}

func downloadSingleObjectToFile(downloader *manager.Downloader, ctx context.Context, bucketName string, objectKey string, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("downloadSingleObjectToFile: failed to create file %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket:       aws.String(bucketName),
		Key:          aws.String(objectKey),
		RequestPayer: "requester",
	})
	if err != nil {
		return fmt.Errorf("downloadSingleObjectToFile: failed to download object %s:%s: %w",
			bucketName, objectKey, err)
	}

	return nil
}
