package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// Standard default permissions
// File: u=rw, g=rw, o=r
const PermFile os.FileMode = 0664

// Dir:  u=rwx, g=rwx, o=rx (Requires +x to traverse)
const PermDir os.FileMode = 0775

// ExpandPath expands $VAR / ${VAR} references and a leading ~ in path.
// Unset variables expand to the empty string.
func ExpandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if home, err := homedir.Expand(expanded); err == nil {
		return home
	}
	return expanded
}

// HasPathPrefix reports whether the expanded form of path starts with prefix.
func HasPathPrefix(path, prefix string) bool {
	return strings.HasPrefix(ExpandPath(path), prefix)
}

// FileExists checks if a file exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// EnsureGroupDir creates path (and parents) if missing and grants the group
// write and traverse permission on the leaf directory.
func EnsureGroupDir(path string) error {
	if !DirExists(path) {
		if err := os.MkdirAll(path, PermDir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("could not stat path %s: %w", path, err)
	}
	mode := info.Mode().Perm() | 0030 // g+wx
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("failed to chmod dir %s: %w", path, err)
	}
	return nil
}
