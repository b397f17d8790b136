//go:build !unix

package preflight

import (
	"errors"
	"io"
	"os"
)

func accessReadWrite(path string) error {
	f, err := os.CreateTemp(path, ".capturepair-access-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func accessRead(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
