package utils

import (
	"bufio"
	"os"

	"github.com/pkg/errors"
)

type Writer interface {
	Write(p []byte) (n int, err error)
	Flush() error
}

type FileManager interface {
	Close() error
	Create(name string) (Writer, error)
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(filename string) ([]byte, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
}

// OSFileManager writes through a buffered writer to a single open file at a
// time. Close flushes and closes it.
type OSFileManager struct {
	Outfile *os.File
	Writer  *bufio.Writer
}

func (osfc *OSFileManager) Create(name string) (Writer, error) {
	if osfc.Outfile != nil {
		return nil, errors.Errorf("file %s is still open", osfc.Outfile.Name())
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	osfc.Outfile = f
	osfc.Writer = bufio.NewWriter(f)
	return osfc.Writer, nil
}

func (osfc *OSFileManager) Close() error {
	if osfc.Outfile == nil {
		return nil
	}
	defer func() {
		osfc.Outfile = nil
		osfc.Writer = nil
	}()

	if err := osfc.Writer.Flush(); err != nil {
		_ = osfc.Outfile.Close()
		return err
	}
	return osfc.Outfile.Close()
}

func (osfc *OSFileManager) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (osfc *OSFileManager) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (osfc *OSFileManager) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}
