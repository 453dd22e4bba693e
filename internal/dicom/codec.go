package dicom

// Codec opens DICOM files into datasets and writes datasets back out.
type Codec interface {
	Open(path string) (*Dataset, error)
	// OpenHeader reads a dataset that is only inspected, never written.
	OpenHeader(path string) (*Dataset, error)
	Write(ds *Dataset, path string) error
}

// FileCodec is the Codec backed by the local filesystem.
type FileCodec struct{}

// Open reads the full dataset, pixel data included, so it can be written back unchanged.
func (FileCodec) Open(path string) (*Dataset, error) {
	return ReadDicom(path)
}

// OpenHeader skips pixel data.
func (FileCodec) OpenHeader(path string) (*Dataset, error) {
	return ReadDicomMetadataOnly(path)
}

// Write saves ds atomically at path.
func (FileCodec) Write(ds *Dataset, path string) error {
	return ds.Save(path)
}
