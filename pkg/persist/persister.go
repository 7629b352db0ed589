package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SaveResults writes v to path with the codec implied by its extension.
// The file is written next to its destination and renamed into place.
func SaveResults(path string, v any) (err error) {
	codec, err := CodecForPath(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, os.Remove(tmp.Name()))
		}
	}()

	if err = codec.Encode(tmp, v); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("encode results: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close results file: %w", err)
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename results file: %w", err)
	}

	return nil
}

// LoadResults decodes path into v, a pointer, with the codec implied by its
// extension.
func LoadResults(path string, v any) error {
	codec, err := CodecForPath(path)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open results file: %w", err)
	}
	defer file.Close()

	if err := codec.Decode(file, v); err != nil {
		return fmt.Errorf("decode results: %w", err)
	}

	return nil
}

// Load is LoadResults for a concrete type.
func Load[T any](path string) (T, error) {
	var v T

	err := LoadResults(path, &v)

	return v, err
}
