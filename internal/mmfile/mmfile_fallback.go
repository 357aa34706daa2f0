//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package mmfile

import "os"

func mapFile(*os.File, int) ([]byte, func() error, error) {
	return nil, nil, ErrUnsupported
}

func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
