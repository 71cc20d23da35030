package config

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DirectoryCheck is the outcome of probing one configured directory.
type DirectoryCheck struct {
	Name   string
	Path   string
	Passed bool
	Detail string
}

// CheckDirectories verifies every configured directory exists and is
// readable and writable by the current process.
func (c *Config) CheckDirectories() []DirectoryCheck {
	return []DirectoryCheck{
		checkDirectoryAccess("library_dir", c.Paths.LibraryDir),
		checkDirectoryAccess("import_dir", c.Paths.ImportDir),
		checkDirectoryAccess("log_dir", c.Paths.LogDir),
	}
}

func checkDirectoryAccess(name, path string) DirectoryCheck {
	check := DirectoryCheck{Name: name, Path: path}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			check.Detail = "does not exist"
			return check
		}
		check.Detail = fmt.Sprintf("stat: %v", err)
		return check
	}
	if !info.IsDir() {
		check.Detail = "is not a directory"
		return check
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		check.Detail = fmt.Sprintf("insufficient permissions: %v", err)
		return check
	}
	check.Passed = true
	check.Detail = "read/write ok"
	return check
}
