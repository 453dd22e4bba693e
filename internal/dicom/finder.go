package dicom

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DicomExtensions are common DICOM file extensions
var DicomExtensions = map[string]bool{
	".dcm":   true,
	".dicom": true,
	".dic":   true,
	".ima":   true,
}

// ExcludedNames are filenames to skip
var ExcludedNames = map[string]bool{
	"DICOMDIR":    true,
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
}

// ExcludedExtensions are file extensions that are never DICOM
var ExcludedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".log":  true,
	".csv":  true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".xml":  true,
	".tmp":  true,
	".zip":  true,
	".gz":   true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".pdf":  true,
}

// ExcludedDirs are directory names to skip entirely
var ExcludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
}

// DiscoveredFile is one input file and its location relative to the scan root.
type DiscoveredFile struct {
	// Path is the absolute path of the file.
	Path string
	// RelPath is Path relative to the scan root, used verbatim for output placement.
	RelPath string
}

// FindOptions controls directory traversal.
type FindOptions struct {
	Recursive bool
	// ExcludePaths are directories (absolute) that are never descended into,
	// such as an output root nested inside the input root.
	ExcludePaths []string
}

// FindDicomFiles finds all DICOM files under root, sorted by relative path.
func FindDicomFiles(root string, opts FindOptions) ([]DiscoveredFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(opts.ExcludePaths))
	for _, p := range opts.ExcludePaths {
		if abs, err := filepath.Abs(p); err == nil {
			excluded[abs] = true
		}
	}

	var files []DiscoveredFile

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == absRoot {
				return err
			}
			return nil // Skip entries we can't access
		}

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if ExcludedDirs[d.Name()] || excluded[path] {
				return filepath.SkipDir
			}
			if !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || ExcludedNames[d.Name()] {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ExcludedExtensions[ext] {
			return nil
		}

		if !DicomExtensions[ext] && !hasDicomMagicBytes(path) {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		files = append(files, DiscoveredFile{Path: path, RelPath: rel})
		return nil
	}

	if err := filepath.WalkDir(absRoot, walkFn); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// hasDicomMagicBytes checks if a file has the DICOM magic bytes ("DICM" at offset 128)
func hasDicomMagicBytes(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	header := make([]byte, 132)
	if _, err := io.ReadFull(file, header); err != nil {
		return false
	}

	return string(header[128:132]) == "DICM"
}
