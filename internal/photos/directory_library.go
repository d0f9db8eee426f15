// Package photos implements the two photo collaborators: a photo library
// backed by a directory of image files, and a client for the Google Photos
// Library API.
package photos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"

	"kilroy/internal/domain/entities"
	"kilroy/internal/repository"
)

// DefaultThumbnailSize is the longest edge, in pixels, of a library thumbnail.
const DefaultThumbnailSize = 400

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
}

// DirectoryLibrary treats every image under a root directory as a library
// asset. An asset's id is its slash-separated path relative to the root.
// Location and capture time come from EXIF; files without a readable EXIF
// timestamp fall back to their modification time.
type DirectoryLibrary struct {
	root string
}

func NewDirectoryLibrary(root string) *DirectoryLibrary {
	return &DirectoryLibrary{root: root}
}

// Root returns the scanned directory.
func (l *DirectoryLibrary) Root() string {
	return l.root
}

// WalkAssets visits image files in lexical order.
func (l *DirectoryLibrary) WalkAssets(ctx context.Context, fn func(repository.Asset) error) error {
	return filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		asset, err := readAsset(path, filepath.ToSlash(rel), d)
		if err != nil {
			log.Printf("[LIBRARY] Skipping %s: %v", rel, err)
			return nil
		}
		return fn(asset)
	})
}

func readAsset(path, id string, d fs.DirEntry) (repository.Asset, error) {
	info, err := d.Info()
	if err != nil {
		return repository.Asset{}, err
	}
	asset := repository.Asset{ID: id, TakenAt: info.ModTime().UTC()}

	f, err := os.Open(path)
	if err != nil {
		return repository.Asset{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		// No EXIF block: still an asset, just one without a location.
		return asset, nil
	}
	if taken, err := x.DateTime(); err == nil {
		asset.TakenAt = taken.UTC()
	}
	if lat, lon, err := x.LatLong(); err == nil {
		pt := entities.NewGeoPoint(lat, lon)
		if pt.Validate() == nil {
			asset.Location = &pt
		}
	}
	return asset, nil
}

// LoadThumbnail decodes the asset and scales it so its longest edge is at
// most size pixels, then re-encodes it as JPEG. Images already small enough
// are re-encoded unscaled.
func (l *DirectoryLibrary) LoadThumbnail(ctx context.Context, id string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	rel := filepath.FromSlash(id)
	if !filepath.IsLocal(rel) || !imageExtensions[strings.ToLower(filepath.Ext(rel))] {
		return nil, repository.ErrAssetNotFound
	}

	f, err := os.Open(filepath.Join(l.root, rel))
	if errors.Is(err, os.ErrNotExist) {
		return nil, repository.ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaleToFit(src, size), &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode thumbnail %s: %w", id, err)
	}
	return buf.Bytes(), nil
}

func scaleToFit(src image.Image, size int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= size && h <= size {
		return src
	}

	var tw, th int
	if w >= h {
		tw, th = size, max(1, h*size/w)
	} else {
		tw, th = max(1, w*size/h), size
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// Go Learning Note — Compile-time interface checks:
// Assigning to the blank identifier costs nothing at runtime but fails the
// build if the type stops satisfying the interface.
var (
	_ repository.PhotoLibrary       = (*DirectoryLibrary)(nil)
	_ repository.CloudPhotoProvider = (*GooglePhotosClient)(nil)
)
