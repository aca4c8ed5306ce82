// Package imagestest - helpers for tests that handle gocv images.
package imagestest

import (
	"crypto/md5"
	"fmt"

	"gocv.io/x/gocv"
)

// Fingerprint returns a hex MD5 digest of a Mat's pixel bytes.
//
// Non-continuous views (regions) are cloned first so the digest covers only
// the visible pixels.
//
// Example:
//
// ```go
//
//	before := Fingerprint(region)
//	_, _ = sharpness.Tenengrad(region)
//	fmt.Println(before == Fingerprint(region)) // true
//
// ```
func Fingerprint(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	src := mat
	if !mat.IsContinuous() {
		src = mat.Clone()
		defer src.Close()
	}

	hash := md5.New()
	hash.Write(src.ToBytes())
	return fmt.Sprintf("%x", hash.Sum(nil))
}
