package service

import "path"

// Extension of a product file
type Extension string

const (
	NoExtension   Extension = ""
	ExtensionZIP  Extension = "zip"
	ExtensionSAFE Extension = "SAFE" // Sentinel product, unzipped
	ExtensionJPG  Extension = "jpg"  // quicklook
	ExtensionPNG  Extension = "png"
)

// ProductFilePath returns the path of the product file, given the directory and the product id
func ProductFilePath(dir, productID string, ext Extension) string {
	if ext == NoExtension {
		return path.Join(dir, productID)
	}
	return path.Join(dir, productID+"."+string(ext))
}
