package dicom

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// FieldVR returns the value representation a tag would be written with: the
// VR already present in the dataset, otherwise the dictionary VR.
func (d *Dataset) FieldVR(t tag.Tag) (string, error) {
	if elem, err := d.Data.FindElementByTag(t); err == nil {
		return elem.RawValueRepresentation, nil
	}
	return DictionaryVR(t)
}

// DictionaryVR returns the standard VR for a tag.
func DictionaryVR(t tag.Tag) (string, error) {
	elem, err := dicom.NewElement(t, []string{""})
	if err != nil {
		return "", fmt.Errorf("unknown tag %s: %w", t, err)
	}
	return elem.RawValueRepresentation, nil
}

// SetString sets a value for a tag, replacing the element if it exists and
// inserting it in tag order otherwise. Backslashes separate multiple values.
func (d *Dataset) SetString(t tag.Tag, value string) error {
	existing, findErr := d.Data.FindElementByTag(t)

	var kind tag.VRKind
	var rawVR string
	if findErr == nil {
		kind = existing.ValueRepresentation
		rawVR = existing.RawValueRepresentation
	} else {
		vr, err := DictionaryVR(t)
		if err != nil {
			return err
		}
		rawVR = vr
		kind = tag.GetVRKind(t, vr)
	}

	data, err := valueFor(kind, value)
	if err != nil {
		return fmt.Errorf("tag %s (%s): %w", t, rawVR, err)
	}

	newValue, err := dicom.NewValue(data)
	if err != nil {
		return fmt.Errorf("could not create value: %w", err)
	}

	newElem := &dicom.Element{
		Tag:                    t,
		ValueRepresentation:    kind,
		RawValueRepresentation: rawVR,
		ValueLength:            uint32(len(value)),
		Value:                  newValue,
	}

	if findErr == nil {
		for i, e := range d.Data.Elements {
			if e.Tag == t {
				d.Data.Elements[i] = newElem
				return nil
			}
		}
	}

	d.insert(newElem)
	return nil
}

// insert places an element before the first element with a greater tag.
func (d *Dataset) insert(elem *dicom.Element) {
	idx := len(d.Data.Elements)
	for i, e := range d.Data.Elements {
		if tagLess(elem.Tag, e.Tag) {
			idx = i
			break
		}
	}
	d.Data.Elements = append(d.Data.Elements, nil)
	copy(d.Data.Elements[idx+1:], d.Data.Elements[idx:])
	d.Data.Elements[idx] = elem
}

func tagLess(a, b tag.Tag) bool {
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.Element < b.Element
}

// valueFor converts text into the Go type the DICOM library expects for a VR kind.
func valueFor(kind tag.VRKind, value string) (interface{}, error) {
	parts := strings.Split(value, `\`)
	switch kind {
	case tag.VRStringList, tag.VRString, tag.VRDate:
		return parts, nil
	case tag.VRUInt16List, tag.VRUInt32List, tag.VRInt16List, tag.VRInt32List:
		if value == "" {
			return []int{}, nil
		}
		ints := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("invalid integer %q", p)
			}
			ints = append(ints, n)
		}
		return ints, nil
	case tag.VRFloat32List, tag.VRFloat64List:
		if value == "" {
			return []float64{}, nil
		}
		floats := make([]float64, 0, len(parts))
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", p)
			}
			floats = append(floats, f)
		}
		return floats, nil
	default:
		return nil, fmt.Errorf("cannot assign text to this value representation")
	}
}

// ClearTag clears a tag value (sets to empty string). Absent tags are left
// absent; elements that cannot hold text, such as sequences, are removed.
func (d *Dataset) ClearTag(t tag.Tag) {
	if !d.Has(t) {
		return
	}
	if err := d.SetString(t, ""); err != nil {
		d.Remove(t)
	}
}

// Remove deletes the element for a tag if present.
func (d *Dataset) Remove(t tag.Tag) {
	for i, e := range d.Data.Elements {
		if e.Tag == t {
			d.Data.Elements = append(d.Data.Elements[:i], d.Data.Elements[i+1:]...)
			return
		}
	}
}

// TruncateDate truncates a date to YYYYMM01 format.
func (d *Dataset) TruncateDate(t tag.Tag) {
	value := d.GetTrimmed(t)
	if len(value) >= 6 {
		d.SetString(t, value[:6]+"01")
	} else if value != "" {
		d.SetString(t, "")
	}
}

// Save writes the dataset to outputPath. The data is written to a temporary
// file in the destination directory and renamed into place, so readers never
// observe a partially written file.
func (d *Dataset) Save(outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	// Write DICOM with relaxed verification (many real-world DICOM files
	// don't strictly follow VR specifications)
	if err := dicom.Write(tmp, d.Data,
		dicom.SkipVRVerification(),
		dicom.SkipValueTypeVerification(),
		dicom.DefaultMissingTransferSyntax(),
	); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write DICOM: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("could not set output permissions: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("could not move output into place: %w", err)
	}
	committed = true

	return nil
}
