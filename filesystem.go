package rardecode

import (
	"io/fs"
	"os"
)

// FileSystem abstracts minimal operations needed to discover volumes.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	Open(path string) (fs.File, error)
}

type osFS struct{}

func (osFS) Stat(p string) (fs.FileInfo, error) { return os.Stat(p) }
func (osFS) Open(p string) (fs.File, error)     { return os.Open(p) }

var defaultFS osFS

// DefaultFileSystem returns the FileSystem implementation backed by the
// real OS filesystem, for callers outside this package (e.g. cmd/rarcat)
// that need to pass a FileSystem explicitly.
func DefaultFileSystem() FileSystem { return defaultFS }
