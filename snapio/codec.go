package snapio

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// EncodeFile writes v to fname as a gzip-compressed gob stream, creating
// parent directories as needed. Every pipeline artifact (snapshots,
// catalogs, link tables, graphs, trees) uses this codec.
func EncodeFile(fname string, v interface{}) error {
	if dir := filepath.Dir(fname); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("snapio: creating %s: %w", dir, err)
		}
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("snapio: creating %s: %w", fname, err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if err := gob.NewEncoder(zw).Encode(v); err != nil {
		zw.Close()
		return fmt.Errorf("snapio: encoding %s: %w", fname, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("snapio: flushing %s: %w", fname, err)
	}
	return f.Close()
}

// DecodeFile reads a value written by EncodeFile.
func DecodeFile(fname string, v interface{}) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("snapio: opening %s: %w", fname, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("snapio: opening %s: %w", fname, err)
	}
	defer zr.Close()

	if err := gob.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("snapio: decoding %s: %w", fname, err)
	}
	return nil
}
