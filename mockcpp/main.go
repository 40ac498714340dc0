// mockcpp generates gmock mock classes for C++ interfaces: classes and class templates whose
// methods are all pure virtual. For each interface it writes Mock<Interface>.hpp holding the mock
// class with create() and createStrict() factories.
//
//	mockcpp --dir generated include/**/*.hpp
//
// Configuration is read from mockcpp.jsonc when present; see run/config.schema.json.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"

	"github.com/toejough/mockcpp/mockcpp/run"
)

// main is the entry point of the mockcpp tool.
func main() {
	if os.Args == nil {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run.Run(ctx, os.Args, os.Getenv, &realFileSystem{}, os.Stdout)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		if hints := errors.FlattenHints(err); hints != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hints)
		}

		os.Exit(1)
	}
}

// realFileSystem implements FileSystem using os package.
type realFileSystem struct{}

// Getwd returns the working directory.
func (fs *realFileSystem) Getwd() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get working directory")
	}

	return wd, nil
}

// Glob returns the names of all files matching a doublestar pattern.
func (fs *realFileSystem) Glob(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Wrapf(err, "glob failed for pattern %s", pattern)
	}

	return matches, nil
}

// MkdirAll creates a directory and its parents.
func (fs *realFileSystem) MkdirAll(path string, perm os.FileMode) error {
	err := os.MkdirAll(path, perm)
	if err != nil {
		return errors.Wrapf(err, "failed to create directory %s", path)
	}

	return nil
}

// ReadFile reads the file named by name and returns the contents.
func (fs *realFileSystem) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file %s", name)
	}

	return data, nil
}

// Stat returns file info for name.
func (fs *realFileSystem) Stat(name string) (os.FileInfo, error) {
	info, err := os.Stat(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", name)
	}

	return info, nil
}

// WriteFile writes data to the file named by name.
func (fs *realFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	err := os.WriteFile(name, data, perm)
	if err != nil {
		return errors.Wrapf(err, "failed to write file %s", name)
	}

	return nil
}
