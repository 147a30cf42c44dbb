package configutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// ErrNotFound is returned when neither the config file nor its local override exist.
var ErrNotFound = errors.New("config not found")

// localPath turns `dir/config.json5` into `dir/config.local.json5`.
func localPath(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

func readInto[T any](path string, out *T) (bool, error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(contents) == 0 {
		return false, nil
	}
	err = json5.Unmarshal(contents, out)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// ReadConfig reads a json5 configuration file, `name` should come with a file extension.
// The following files are merged, where higher number is more prioritized.
// 1. defaults
// 2. <name>.<ext>
// 3. <name>.local.<ext>
func ReadConfig[T any](name string, defaults T) (T, error) {
	var base T
	foundBase, err := readInto(name, &base)
	if err != nil {
		return defaults, err
	}

	var override T
	foundLocal, err := readInto(localPath(name), &override)
	if err != nil {
		return defaults, err
	}

	if !foundBase && !foundLocal {
		return defaults, ErrNotFound
	}

	if foundLocal {
		slog.Info("merging config with local overrides", "local", localPath(name))
		err = mergo.Merge(&base, override, mergo.WithOverride)
		if err != nil {
			return defaults, err
		}
	}

	err = mergo.Merge(&base, defaults)
	if err != nil {
		return defaults, err
	}
	return base, nil
}

// ReadRecursively is ReadConfig but it walks up from the working directory until
// a directory containing `name` is found.
func ReadRecursively[T any](name string, defaults T) (T, error) {
	current, err := os.Getwd()
	if err != nil {
		return defaults, err
	}

	for {
		cfg, err := ReadConfig(filepath.Join(current, name), defaults)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return defaults, err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return defaults, ErrNotFound
		}
		current = parent
	}
}
