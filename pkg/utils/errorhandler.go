package utils

import (
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// WrapError annotates err with the caller's file and line. The original error
// stays reachable through errors.As / errors.Cause.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return errors.WithMessagef(err, "at %s:%d", filepath.Base(file), line)
}
