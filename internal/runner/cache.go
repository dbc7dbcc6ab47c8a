package runner

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"clusterizer/internal/domain/model"
)

// VersionDir is where the archive of a project version is unpacked.
func VersionDir(cacheDir string, id model.ProjectVersionID) string {
	return filepath.Join(cacheDir, "project_versions", strconv.FormatInt(int64(id), 10))
}

var ErrUnsafeArchive = errors.New("archive entry escapes its target directory")

// VersionCache materializes project version archives on disk.
type VersionCache struct {
	http *http.Client
}

func NewVersionCache(client *http.Client) *VersionCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &VersionCache{http: client}
}

// Ensure makes destDir hold the extracted contents of the zip at url. An
// existing destDir is trusted as is. Extraction happens in a scratch
// directory next to destDir that is renamed into place, so destDir never
// holds a partial archive.
func (c *VersionCache) Ensure(ctx context.Context, url, destDir string) error {
	if _, err := os.Stat(destDir); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", destDir, err)
	}

	body, err := c.download(ctx, url)
	if err != nil {
		return err
	}

	parent := filepath.Dir(destDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}
	scratch, err := os.MkdirTemp(parent, ".extract-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	if err := extractZip(body, scratch); err != nil {
		os.RemoveAll(scratch)
		return fmt.Errorf("extract %s: %w", url, err)
	}

	if err := os.Rename(scratch, destDir); err != nil {
		os.RemoveAll(scratch)
		// Lost the race against another extraction of the same version.
		if _, statErr := os.Stat(destDir); statErr == nil {
			return nil
		}
		return fmt.Errorf("move into %s: %w", destDir, err)
	}
	return nil
}

func (c *VersionCache) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download %s: status %s", url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	return body, nil
}

func extractZip(body []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return err
	}

	for _, f := range zr.File {
		target, err := safeJoin(dir, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode&os.ModeSymlink != 0:
			return fmt.Errorf("%s: symlinks are not supported", f.Name)
		default:
			if err := writeEntry(f, target, mode.Perm()); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeEntry(f *zip.File, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	// OpenFile applies the umask; the archive's bits win.
	return os.Chmod(target, perm)
}

// safeJoin resolves an archive entry name inside dir, rejecting absolute
// names and any name that climbs out of dir.
func safeJoin(dir, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafeArchive)
	}
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafeArchive)
	}
	return target, nil
}
