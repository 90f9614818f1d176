//go:build windows

package mcp

import (
	"os"
)

// openPolicyFile opens the policy file on Windows.
// Windows doesn't have O_NOFOLLOW, but symlinks are less common on Windows
// and require special privileges to create.
func openPolicyFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return f, nil
}

// checkFilePermissions on Windows is a no-op: Unix permission bits are not
// reported meaningfully and access is governed by ACLs.
func checkFilePermissions(_ os.FileInfo) error {
	return nil
}

// checkFileOwnership on Windows is a no-op.
func checkFileOwnership(_ os.FileInfo) error {
	return nil
}
