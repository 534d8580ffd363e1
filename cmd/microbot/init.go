package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hankl/microbot/internal/defaults"
)

// runInit initializes a microbot working directory with default files:
// config, persona, and the shipped skill descriptors. Existing files
// are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing microbot workspace in %s\n", dir)

	for _, sub := range []string{"data", "skills"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s\n", configPath)

	personaPath := filepath.Join(dir, "persona.md")
	if err := writeIfMissing(personaPath, defaults.PersonaMD); err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s\n", personaPath)

	err := fs.WalkDir(defaults.SkillFiles, "skills", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}

		content, err := defaults.SkillFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read embedded %s: %w", path, err)
		}

		destPath := filepath.Join(dir, "skills", d.Name())
		if err := writeIfMissing(destPath, content); err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", destPath)
		return nil
	})
	if err != nil {
		return fmt.Errorf("install skills: %w", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml and persona.md to customize your installation,")
	fmt.Fprintln(w, "then run: microbot serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, 0o644)
}
