package cliexec

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

// defaultWellKnownDirs are scanned in order when PATH lookup fails. GUI
// launchers and daemons often run with a minimal PATH that omits them.
var defaultWellKnownDirs = []string{
	"/opt/homebrew/bin",
	"/usr/local/bin",
	"~/.local/bin",
	"~/.npm-global/bin",
	"~/.bun/bin",
	"~/.cargo/bin",
	"~/.volta/bin",
	"/usr/bin",
	"/bin",
}

// VersionedDir is a version-manager install root whose children are version
// folders, e.g. ~/.nvm/versions/node/<version>/bin.
type VersionedDir struct {
	// Root contains one subdirectory per installed version.
	Root string
	// BinSubpath is joined to each version folder to reach the binaries.
	BinSubpath string
}

var defaultVersionedDirs = []VersionedDir{
	{Root: "~/.nvm/versions/node", BinSubpath: "bin"},
	{Root: "~/.local/share/fnm/node-versions", BinSubpath: filepath.Join("installation", "bin")},
	{Root: "~/.asdf/installs/nodejs", BinSubpath: "bin"},
	{Root: "~/.local/share/mise/installs/node", BinSubpath: "bin"},
}

// Finder locates named executables on disk.
//
// Search order: PATH (the platform which-equivalent), then WellKnownDirs in
// order, then VersionedDirs preferring the lexically highest version folder.
type Finder struct {
	// HomeDir expands a leading "~/" in directory entries. Defaults to os.UserHomeDir.
	HomeDir string
	// WellKnownDirs overrides the default install directories when non-nil.
	WellKnownDirs []string
	// VersionedDirs overrides the default version-manager roots when non-nil.
	VersionedDirs []VersionedDir
	// LookPath overrides PATH resolution. Defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// NewFinder returns a Finder with the default search locations.
func NewFinder() *Finder {
	home, _ := os.UserHomeDir()
	return &Finder{HomeDir: home}
}

// Find returns the first matching executable for name.
func (f *Finder) Find(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if filepath.IsAbs(name) {
		return name, isExecutable(name)
	}

	lp := f.LookPath
	if lp == nil {
		lp = exec.LookPath
	}
	if p, err := lp(name); err == nil && p != "" {
		return p, true
	}

	dirs := f.WellKnownDirs
	if dirs == nil {
		dirs = defaultWellKnownDirs
	}
	for _, dir := range dirs {
		candidate := filepath.Join(f.expand(dir), name)
		if isExecutable(candidate) {
			return candidate, true
		}
	}

	versioned := f.VersionedDirs
	if versioned == nil {
		versioned = defaultVersionedDirs
	}
	for _, vd := range versioned {
		if p, ok := f.findVersioned(vd, name); ok {
			return p, true
		}
	}
	return "", false
}

func (f *Finder) findVersioned(vd VersionedDir, name string) (string, bool) {
	root := f.expand(vd.Root)
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	// Lexical order is a cheap approximation of semver; v20 sorts above v18.
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	for _, v := range versions {
		candidate := filepath.Join(root, v, vd.BinSubpath, name)
		if isExecutable(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (f *Finder) expand(dir string) string {
	if len(dir) < 2 || dir[:2] != "~/" {
		return dir
	}
	home := f.HomeDir
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	if home == "" {
		return dir
	}
	return filepath.Join(home, dir[2:])
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
