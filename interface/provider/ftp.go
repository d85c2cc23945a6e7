package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/geosat-ops/sentineldownloader/common"
	"github.com/geosat-ops/sentineldownloader/service"
)

// FTPImageProvider implements ImageProvider for connection to FTP
type FTPImageProvider struct {
	host        string
	pathPattern string
	user        string
	pword       string
	tls         bool
}

// Name implements ImageProvider
func (ip *FTPImageProvider) Name() string {
	return "FTP"
}

// NewFTPImageProvider creates a new ImageProvider for ftp download link
// pathPattern is the full ftp path, including host, port and folder tree,
// i.e: ftp://ftp.example.org:21/Images/{SCENE}.zip (see common.FormatBrackets)
func NewFTPImageProvider(pathPattern, user, pword string) *FTPImageProvider {
	pathPattern = strings.TrimPrefix(pathPattern, "ftp://")
	splits := strings.SplitN(pathPattern, "/", 2)
	if len(splits) == 1 {
		splits = append(splits, "{SCENE}.zip")
	}
	splitHost := strings.SplitN(splits[0], ":", 2)
	useTLS := len(splitHost) == 2 && splitHost[1] == "990"

	return &FTPImageProvider{
		host:        splits[0],
		tls:         useTLS,
		pathPattern: splits[1],
		user:        user,
		pword:       pword,
	}
}

// Download implements ImageProvider
func (ip *FTPImageProvider) Download(ctx context.Context, product common.Product, localDir string) error {
	format, err := common.Info(product.SourceID)
	if err != nil {
		return fmt.Errorf("FTPImageProvider: %w", err)
	}

	path := common.FormatBrackets(ip.pathPattern, format)

	// Connection to FTP
	ftpOption := []ftp.DialOption{ftp.DialWithTimeout(5 * time.Second)}
	if ip.tls {
		ftpOption = append(ftpOption, ftp.DialWithTLS(&tls.Config{InsecureSkipVerify: true}))
	}
	c, err := ftp.Dial(ip.host, ftpOption...)
	if err != nil {
		return service.MakeTemporary(fmt.Errorf("FTPImageProvider.Dial: %w", err))
	}

	if err = c.Login(ip.user, ip.pword); err != nil {
		return service.ErrUnauthorized{Provider: ip.Name()}
	}
	defer c.Quit()

	// Get file size
	s, _ := c.FileSize(path)

	// Get file stream
	r, err := c.Retr(path)
	if err != nil {
		return fmt.Errorf("FTPImageProvider.Retr: %w", err)
	}
	defer r.Close()

	// Download to local file
	localZip := service.ProductFilePath(localDir, product.SourceID, service.ExtensionZIP)
	destFile, err := os.Create(localZip)
	if err != nil {
		return fmt.Errorf("FTPImageProvider.Create: %w", err)
	}
	defer destFile.Close()
	defer os.Remove(localZip)

	progress := NewProgress(ctx, "Ftp:"+product.SourceID, s, 5)
	defer progress.Close()
	if _, err = io.Copy(destFile, io.TeeReader(r, &WriteCounter{Progress: progress})); err != nil {
		return fmt.Errorf("FTPImageProvider.Copy: %w", err)
	}

	// Unarchive
	if err := unarchive(localZip, localDir); err != nil {
		return service.MakeTemporary(fmt.Errorf("FTPImageProvider.Unarchive: %w", err))
	}
	return nil
}
