// Package binary writes configuration files for the domain binaries and runs
// them as subprocesses with their output captured.
package binary

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
)

// WriteConfig serializes params as "section.key = value" lines in walk order
func WriteConfig(w io.Writer, params domain.Params) error {
	bw := bufio.NewWriter(w)
	var err error
	params.Walk(func(name string, v *domain.Value) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(bw, "%s = %s\n", name, v.Render())
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// WriteConfigFile writes the configuration of a stage to path
func WriteConfigFile(path string, params domain.Params) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config %s: %w", path, err)
	}
	if err := WriteConfig(f, params); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return f.Close()
}

// Overrides renders override params as "name=value" command-line arguments
func Overrides(params domain.Params) []string {
	var args []string
	params.Walk(func(name string, v *domain.Value) {
		args = append(args, name+"="+v.Render())
	})
	return args
}
