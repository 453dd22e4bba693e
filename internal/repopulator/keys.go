package repopulator

import (
	"path/filepath"

	"github.com/suyashkumar/dicom/pkg/tag"

	dcm "dicom-repopulator/internal/dicom"
)

// KeyMode selects how a file's matching key is computed.
type KeyMode int

const (
	// KeyByField reads the key from a field of the file itself.
	KeyByField KeyMode = iota
	// KeyByPath uses the file's absolute or root-relative path as the key.
	KeyByPath
)

func (m KeyMode) String() string {
	if m == KeyByPath {
		return "path"
	}
	return "field"
}

// KeyResolver computes the identity token used to find a file's mapping row.
type KeyResolver struct {
	mode  KeyMode
	field tag.Tag
}

// NewFieldResolver matches files by the value of field.
func NewFieldResolver(field tag.Tag) *KeyResolver {
	return &KeyResolver{mode: KeyByField, field: field}
}

// NewPathResolver matches files by path.
func NewPathResolver() *KeyResolver {
	return &KeyResolver{mode: KeyByPath}
}

// Mode returns the resolver's mode.
func (k *KeyResolver) Mode() KeyMode { return k.mode }

// Field returns the key field in field mode.
func (k *KeyResolver) Field() tag.Tag { return k.field }

// NeedsDataset reports whether Keys reads the file's fields.
func (k *KeyResolver) NeedsDataset() bool {
	return k.mode == KeyByField
}

// Keys returns the candidate keys for a file, most specific first. In field
// mode ds must be the opened file; an empty field yields no candidates.
func (k *KeyResolver) Keys(f dcm.DiscoveredFile, ds *dcm.Dataset) []string {
	if k.mode == KeyByPath {
		return pathKeys(f)
	}

	if ds == nil {
		return nil
	}
	if v := ds.GetTrimmed(k.field); v != "" {
		return []string{v}
	}
	return nil
}

func pathKeys(f dcm.DiscoveredFile) []string {
	keys := []string{filepath.Clean(f.Path)}

	if f.RelPath != "" {
		keys = append(keys, filepath.Clean(f.RelPath))
	}
	return keys
}

// NormalizePathKey is applied to mapping-table keys in path mode so that
// they compare equal to the candidates produced by Keys.
func NormalizePathKey(key string) string {
	return filepath.Clean(filepath.FromSlash(key))
}
