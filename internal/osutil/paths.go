/*
Copyright 2011 The Perkeep Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package osutil resolves the handful of platform-dependent paths the
// pipeline needs: the user's home directory and a default cache/data
// directory for the sqlite Work Store when DATABASE_PATH isn't set.
package osutil

import (
	"os"
	"path/filepath"
	"runtime"
)

// HomeDir returns the path to the user's home directory, or the empty
// string if it isn't known.
func HomeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}

// CacheDir returns the directory the Work Store's sqlite database lives
// under when DATABASE_PATH isn't set explicitly. It respects
// XDG_CACHE_HOME on Unix and falls back to a platform-appropriate
// default, the way the teacher's camliCacheDir did for Camlistore's own
// on-disk state.
func CacheDir() string {
	if d := os.Getenv("NOSTRMIGRATE_CACHE_DIR"); d != "" {
		return d
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(HomeDir(), "Library", "Caches", "nostrmigrate")
	case "windows":
		for _, ev := range []string{"TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return filepath.Join(v, "nostrmigrate")
			}
		}
		return filepath.Join(os.Getenv("HOMEDRIVE")+os.Getenv("HOMEPATH"), "nostrmigrate")
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "nostrmigrate")
	}
	return filepath.Join(HomeDir(), ".cache", "nostrmigrate")
}
