package configutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/kelseyhightower/envconfig"
	"github.com/titanous/json5"
)

// localName turns "dir/config.json5" into "dir/config.local.json5".
func localName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

// readLayer decodes one config file, found is false when it does not exist
// or is empty.
func readLayer[T any](name string) (layer T, found bool, err error) {
	contents, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return layer, false, nil
	}
	if err != nil {
		return layer, false, err
	}
	if len(contents) == 0 {
		return layer, false, nil
	}
	err = json5.Unmarshal(contents, &layer)
	if err != nil {
		return layer, false, fmt.Errorf("parse %s: %w", name, err)
	}
	return layer, true, nil
}

// ReadConfig reads the json5 file `name` and merges `<name>.local.<ext>` over
// it when present, so secrets can stay out of the shared file. Fields the
// local file leaves empty keep their value. os.ErrNotExist is returned when
// neither file exists.
func ReadConfig[T any](name string) (T, error) {
	out, foundDefault, err := readLayer[T](name)
	if err != nil {
		return out, err
	}

	local := localName(name)
	override, foundLocal, err := readLayer[T](local)
	if err != nil {
		return out, err
	}
	if foundLocal {
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, fmt.Errorf("merge %s: %w", local, err)
		}
		slog.Debug("merged config with local overrides", "local", local)
	}

	if !foundDefault && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadConfigWithEnv is ReadConfig followed by environment variable
// overrides, variables are named <PREFIX>_<FIELD> (see envconfig).
// A missing config file is not an error, everything may come from the
// environment.
func ReadConfigWithEnv[T any](name, prefix string) (T, error) {
	out, err := ReadConfig[T](name)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return out, err
	}
	err = envconfig.Process(prefix, &out)
	if err != nil {
		return out, fmt.Errorf("environment overrides: %w", err)
	}
	return out, nil
}
