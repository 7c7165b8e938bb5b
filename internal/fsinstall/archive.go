package fsinstall

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"
)

// extractArchive unpacks the archive at path into dest. With strip set, the
// single top-level directory of the archive is dropped, like
// tar --strip-components=1.
func extractArchive(path, dest string, strip bool) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if strings.HasSuffix(path, ".zip") {
		return unzipArchive(path, dest, strip)
	}
	return extractTar(path, dest, strip)
}

// within reports whether the cleaned path p is dest or below it.
func within(dest, p string) bool {
	dest = filepath.Clean(dest)
	return p == dest || strings.HasPrefix(p, dest+string(os.PathSeparator))
}

// safeJoin joins an archive member name onto dest, rejecting names that
// would land outside of it.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	if !within(dest, target) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return target, nil
}

// safeSymlink rejects link targets that are absolute or resolve outside dest
// from the directory holding the link.
func safeSymlink(dest, linkPath, target string) error {
	if filepath.IsAbs(target) || !within(dest, filepath.Join(filepath.Dir(linkPath), target)) {
		return fmt.Errorf("illegal symlink in archive: %s -> %s", linkPath, target)
	}
	return nil
}

// notThroughSymlink refuses target when it, or any directory between dest
// and it, already exists as a symlink. Writing there would follow the link.
func notThroughSymlink(dest, target string) error {
	rel, err := filepath.Rel(dest, target)
	if err != nil {
		return err
	}
	p := filepath.Clean(dest)
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		if part == "." {
			continue
		}
		p = filepath.Join(p, part)
		info, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("illegal path through symlink in archive: %s", target)
		}
	}
	return nil
}

// stripper drops a common top-level directory from member names.
type stripper struct {
	enabled bool
	decided bool
	prefix  string
}

// name returns the stripped member name; empty means skip the entry.
func (s *stripper) name(member string, isDir bool) string {
	member = strings.TrimPrefix(member, "./")
	if !s.enabled {
		return member
	}
	if !s.decided {
		s.decided = true
		if i := strings.IndexByte(member, '/'); i != -1 {
			s.prefix = member[:i+1]
		} else if isDir {
			s.prefix = member + "/"
		}
	}
	if s.prefix != "" && strings.HasPrefix(member+"/", s.prefix) {
		return strings.TrimPrefix(strings.TrimPrefix(member, strings.TrimSuffix(s.prefix, "/")), "/")
	}
	return member
}

func decompressor(path string, f io.Reader) (io.Reader, func(), error) {
	noop := func() {}
	switch {
	case strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader for %s: %w", path, err)
		}
		return gz, func() { gz.Close() }, nil
	case strings.HasSuffix(path, ".tar.bz2"):
		return bzip2.NewReader(f), noop, nil
	case strings.HasSuffix(path, ".tar.xz"):
		r, err := xz.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader for %s: %w", path, err)
		}
		return r, noop, nil
	case strings.HasSuffix(path, ".tar.zst"):
		zst, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader for %s: %w", path, err)
		}
		return zst, zst.Close, nil
	case strings.HasSuffix(path, ".tar"):
		return f, noop, nil
	}
	return nil, nil, fmt.Errorf("unsupported archive format: %s", filepath.Base(path))
}

// extractTar extracts a tar archive (with possible compression), handling
// PAX headers and preserving timestamps.
func extractTar(path, dest string, strip bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer f.Close()

	r, closeFn, err := decompressor(path, f)
	if err != nil {
		return err
	}
	defer closeFn()

	tr := tar.NewReader(r)
	s := stripper{enabled: strip}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", path, err)
		}

		// Skip PAX headers (global or per-file)
		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name := s.name(hdr.Name, hdr.Typeflag == tar.TypeDir)
		if name == "" {
			continue
		}
		targetPath, err := safeJoin(dest, name)
		if err != nil {
			return err
		}
		if err := notThroughSymlink(dest, targetPath); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", targetPath, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, os.FileMode(hdr.Mode)|0o700); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", targetPath, err)
			}
		case tar.TypeReg:
			outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)|0o200)
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", targetPath, err)
			}
			if _, err := io.Copy(outFile, tr); err != nil {
				outFile.Close()
				return fmt.Errorf("failed to write file %s: %w", targetPath, err)
			}
			outFile.Close()
			if err := os.Chtimes(targetPath, hdr.AccessTime, hdr.ModTime); err != nil {
				return fmt.Errorf("failed to set times for file %s: %w", targetPath, err)
			}
		case tar.TypeLink:
			linkName := s.name(hdr.Linkname, false)
			oldPath, err := safeJoin(dest, linkName)
			if err != nil {
				return err
			}
			if err := notThroughSymlink(dest, filepath.Dir(oldPath)); err != nil {
				return err
			}
			if err := os.Link(oldPath, targetPath); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to create hard link %s -> %s: %w", targetPath, oldPath, err)
			}
		case tar.TypeSymlink:
			if err := safeSymlink(dest, targetPath, hdr.Linkname); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, targetPath); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", targetPath, hdr.Linkname, err)
			}
			times := []unix.Timeval{
				unix.NsecToTimeval(hdr.AccessTime.UnixNano()),
				unix.NsecToTimeval(hdr.ModTime.UnixNano()),
			}
			// Symlink times are cosmetic.
			_ = unix.Lutimes(targetPath, times)
		}
	}
	return nil
}

func unzipArchive(path, dest string, strip bool) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	s := stripper{enabled: strip}
	for _, f := range r.File {
		name := s.name(f.Name, f.FileInfo().IsDir())
		if name == "" {
			continue
		}
		fpath, err := safeJoin(dest, name)
		if err != nil {
			return err
		}
		if err := notThroughSymlink(dest, fpath); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
			return err
		}
		if err := unzipFile(f, fpath); err != nil {
			return err
		}
	}
	return nil
}

func unzipFile(f *zip.File, fpath string) error {
	outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode()|0o200)
	if err != nil {
		return err
	}
	defer outFile.Close()

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(outFile, rc)
	return err
}
