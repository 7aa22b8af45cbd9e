package packaging

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
)

// Archive is an in-memory zip file built deterministically: entries are
// always written in sorted-name order and with a fixed modification time,
// so the same logical content always produces byte-identical bytes.
type Archive struct {
	files map[string][]byte
}

func NewArchive() *Archive {
	return &Archive{files: make(map[string][]byte)}
}

// AddFile stores one file's content at path within the archive.
func (a *Archive) AddFile(path string, content []byte) {
	a.files[path] = content
}

// Merge copies every entry of other into a, prefixed by dir (use "" for the
// root), mirroring original_source's merge_zips(ZipInput::WithFolders).
func (a *Archive) Merge(dir string, other *Archive) {
	for name, content := range other.files {
		path := name
		if dir != "" && dir != "./" {
			path = dir + "/" + name
		}
		a.files[path] = content
	}
}

// Bytes serializes the archive to zip format with a stable entry order.
func (a *Archive) Bytes() ([]byte, error) {
	names := make([]string, 0, len(a.files))
	for name := range a.files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		fw, err := w.Create(name)
		if err != nil {
			return nil, fmt.Errorf("packaging: create zip entry %s: %w", name, err)
		}
		if _, err := fw.Write(a.files[name]); err != nil {
			return nil, fmt.Errorf("packaging: write zip entry %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("packaging: close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadArchive parses a zip's content back into an Archive.
func ReadArchive(data []byte) (*Archive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("packaging: read zip: %w", err)
	}
	a := NewArchive()
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("packaging: open zip entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("packaging: read zip entry %s: %w", f.Name, err)
		}
		a.files[f.Name] = content
	}
	return a, nil
}

// TfSource concatenates every ".tf" file in the archive's root, the source
// ExtractVariablesAndOutputs and the diff engine parse.
func (a *Archive) TfSource() string {
	var buf bytes.Buffer
	names := make([]string, 0, len(a.files))
	for name := range a.files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if len(name) > 3 && name[len(name)-3:] == ".tf" && !bytes.ContainsRune([]byte(name), '/') {
			buf.Write(a.files[name])
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}
