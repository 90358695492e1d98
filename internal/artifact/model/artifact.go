package model

import (
	"fmt"
	"time"
)

// BundleFileName is the tarball name every build leg uploads to the chief
const BundleFileName = "dist-py3.tar.gz"

// Artifact represent one stored build bundle
type Artifact struct {
	PipelineID string
	Name       string
	Size       int64
	ModTime    time.Time
}

// WheelFileName returns the expected wheel file name for a release
func WheelFileName(packageName, tag string) string {
	return fmt.Sprintf("%s-%s-py3-none-any.whl", packageName, tag)
}

// SdistFileName returns the expected sdist file name for a release
func SdistFileName(packageName, tag string) string {
	return fmt.Sprintf("%s-%s.tar.gz", packageName, tag)
}
