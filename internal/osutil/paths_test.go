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

package osutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCacheDirHonorsEnvOverride(t *testing.T) {
	defer os.Setenv("NOSTRMIGRATE_CACHE_DIR", os.Getenv("NOSTRMIGRATE_CACHE_DIR"))
	os.Setenv("NOSTRMIGRATE_CACHE_DIR", "/tmp/nostrmigrate-test-cache")

	if got, want := CacheDir(), "/tmp/nostrmigrate-test-cache"; got != want {
		t.Errorf("CacheDir() = %q, want %q", got, want)
	}
}

func TestCacheDirFallsBackUnderHome(t *testing.T) {
	defer os.Setenv("NOSTRMIGRATE_CACHE_DIR", os.Getenv("NOSTRMIGRATE_CACHE_DIR"))
	defer os.Setenv("XDG_CACHE_HOME", os.Getenv("XDG_CACHE_HOME"))
	os.Setenv("NOSTRMIGRATE_CACHE_DIR", "")
	os.Setenv("XDG_CACHE_HOME", "")

	got := CacheDir()
	if got == "" {
		t.Fatal("CacheDir() returned empty string")
	}
	if filepath.Base(got) != "nostrmigrate" {
		t.Errorf("CacheDir() = %q, want a path ending in nostrmigrate", got)
	}
}
