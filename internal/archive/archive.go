// Package archive packs dataset directories into uncompressed zip archives
// with a single root entry and unpacks them with that root stripped.
package archive

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Extension is appended to directory outputs when they are archived
const Extension = ".zip"

// Zip writes srcDir into dst. Every entry is stored (no compression) below a
// single root directory named root.
func Zip(srcDir, dst, root string) error {
	if root == "" {
		root = filepath.Base(srcDir)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", dst, err)
	}

	zw := zip.NewWriter(out)
	walkErr := filepath.WalkDir(srcDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		name := path.Join(root, filepath.ToSlash(rel))
		if d.IsDir() {
			_, err := zw.CreateHeader(&zip.FileHeader{Name: name + "/", Method: zip.Store})
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		header.Method = zip.Store
		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		return copyFile(w, p)
	})

	closeErr := zw.Close()
	if cerr := out.Close(); closeErr == nil {
		closeErr = cerr
	}
	if walkErr != nil {
		return fmt.Errorf("failed to archive %s: %w", srcDir, walkErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to finalize archive %s: %w", dst, closeErr)
	}
	return nil
}

func copyFile(w io.Writer, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Unzip extracts src into dstDir. When every entry shares one top-level
// directory that directory is stripped, so the archive contents land
// directly in dstDir.
func Unzip(src, dstDir string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	root := CommonRoot(names)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dstDir, err)
	}
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, root)
		if name == "" || name == "/" {
			continue
		}
		target := filepath.Join(dstDir, filepath.FromSlash(name))
		if !strings.HasPrefix(target, filepath.Clean(dstDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// CommonRoot returns "<dir>/" when every name lives below the same top-level
// directory, and "" otherwise.
func CommonRoot(names []string) string {
	var root string
	for _, name := range names {
		i := strings.Index(name, "/")
		if i <= 0 {
			return ""
		}
		top := name[:i+1]
		if root == "" {
			root = top
		} else if top != root {
			return ""
		}
	}
	return root
}

// IsArchive reports whether a key or path names a zip archive
func IsArchive(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), Extension)
}

// TrimExtension removes the archive extension, if present
func TrimExtension(name string) string {
	if IsArchive(name) {
		return name[:len(name)-len(Extension)]
	}
	return name
}
