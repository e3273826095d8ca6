package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
)

// ErrExists is returned when an artifact is already present and the write
// was not an explicit replacement.
var ErrExists = errors.New("artifact already exists")

// WriteFunc streams the artifact content to w.
type WriteFunc func(w io.Writer) error

// Write publishes the content produced by fn at path and returns the hex
// SHA-256 of the written bytes.
//
// The content goes to a temporary file in the same directory first. It is
// moved into place only after fn and the file sync succeed, so path either
// does not exist or holds the complete artifact. If path already exists
// Write returns ErrExists unless replace is true.
func Write(path string, replace bool, fn WriteFunc) (string, error) {
	dir := filepath.Dir(path)
	if !replace {
		if _, err := os.Lstat(path); err == nil {
			return "", fmt.Errorf("%w: %s", ErrExists, path)
		}
	}

	tmp, err := os.CreateTemp(dir, ".prism-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	published := false
	defer func() {
		if !published {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	hash := sha256.New()
	if err := fn(io.MultiWriter(tmp, hash)); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	if replace {
		if err := os.Rename(tmpName, path); err != nil {
			return "", fmt.Errorf("failed to publish %s: %w", path, err)
		}
	} else if err := publishExclusive(tmpName, path, os.Link); err != nil {
		return "", err
	}
	published = true

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// publishExclusive moves tmpName to path, failing with ErrExists if path
// appeared since Write checked for it. Filesystems without hard links
// (FAT, exFAT, many SMB mounts) get an exclusive create and copy instead.
func publishExclusive(tmpName, path string, link func(oldname, newname string) error) error {
	err := link(tmpName, path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%w: %s", ErrExists, path)
	case errors.Is(err, errors.ErrUnsupported), errors.Is(err, os.ErrPermission):
		if err := copyExclusive(tmpName, path); err != nil {
			return err
		}
	default:
		return fmt.Errorf("failed to publish %s: %w", path, err)
	}
	_ = os.Remove(tmpName)
	return nil
}

// copyExclusive creates path, which must not exist, and copies src into it.
// A partial copy is removed.
func copyExclusive(src, path string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", path, err)
	}
	defer in.Close()

	out, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		return fmt.Errorf("failed to publish %s: %w", path, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to copy %s: %w", path, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// WritePNG encodes img as PNG and publishes it at path.
func WritePNG(path string, replace bool, img image.Image) (string, error) {
	return Write(path, replace, func(w io.Writer) error {
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
		}
		return nil
	})
}

// WriteBytes publishes data at path.
func WriteBytes(path string, replace bool, data []byte) (string, error) {
	return Write(path, replace, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}

// ReadPNG decodes the PNG at path.
func ReadPNG(path string) (image.Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Digest returns the hex SHA-256 of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
