package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const noQuillTomlMessage = "no quill.toml found\nplease specify the artifact directory explicitly, e.g.:\n  quill build path/to/artifacts"

type projectManifest struct {
	Path   string
	Root   string
	Config projectConfig
}

type projectConfig struct {
	Package packageConfig `toml:"package"`
	Build   buildConfig   `toml:"build"`
}

type packageConfig struct {
	Name string `toml:"name"`
}

type buildConfig struct {
	// Artifacts is the directory of .qast files, relative to the manifest.
	Artifacts string `toml:"artifacts"`
	// Target is an optional default target triple.
	Target string `toml:"target"`
}

func findQuillToml(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "quill.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadProjectManifest(startDir string) (*projectManifest, bool, error) {
	manifestPath, ok, err := findQuillToml(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := loadProjectConfig(manifestPath)
	if err != nil {
		return nil, true, err
	}
	return &projectManifest{
		Path:   manifestPath,
		Root:   filepath.Dir(manifestPath),
		Config: cfg,
	}, true, nil
}

func loadProjectConfig(path string) (projectConfig, error) {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return projectConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("package") {
		return projectConfig{}, fmt.Errorf("%s: missing [package]", path)
	}
	if !meta.IsDefined("package", "name") || strings.TrimSpace(cfg.Package.Name) == "" {
		return projectConfig{}, fmt.Errorf("%s: missing [package].name", path)
	}
	if !meta.IsDefined("build", "artifacts") || strings.TrimSpace(cfg.Build.Artifacts) == "" {
		return projectConfig{}, fmt.Errorf("%s: missing [build].artifacts", path)
	}
	return cfg, nil
}

// resolveArtifactDir picks the artifact directory from the argument, the
// manifest, or fails with guidance.
func resolveArtifactDir(args []string, manifest *projectManifest, found bool) (string, error) {
	if len(args) > 0 && filepath.Clean(args[0]) != "." {
		return args[0], nil
	}
	if !found {
		return "", errors.New(noQuillTomlMessage)
	}
	dir := filepath.Join(manifest.Root, filepath.FromSlash(manifest.Config.Build.Artifacts))
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: [build].artifacts path does not exist: %s", manifest.Path, dir)
		}
		return "", fmt.Errorf("%s: failed to stat [build].artifacts: %w", manifest.Path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: [build].artifacts must be a directory", manifest.Path)
	}
	return dir, nil
}
