package storage

import "path/filepath"

// localStorageFullpath joins key under baseDir. Keys are cleaned as if rooted
// so that ".." segments cannot escape the store.
func localStorageFullpath(baseDir, key string) string {
	return filepath.Join(baseDir, filepath.Clean("/"+key))
}
