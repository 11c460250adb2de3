package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumManifest is the .checksums sidecar written next to a config file.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// WriteChecksum hashes configPath and writes/updates the .checksums manifest
// in the same directory.
func WriteChecksum(configPath string) error {
	hash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", filepath.Base(configPath), err)
	}

	dir := filepath.Dir(configPath)
	manifest, err := loadChecksums(dir)
	if err != nil {
		manifest = &ChecksumManifest{Version: 1, Hashes: make(map[string]string)}
	}
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	manifest.Hashes[filepath.Base(configPath)] = hash

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal checksums: %w", err)
	}
	// Restrictive permissions: the manifest holds expected hashes.
	if err := os.WriteFile(filepath.Join(dir, ".checksums"), data, 0600); err != nil {
		return fmt.Errorf("failed to write checksums: %w", err)
	}
	return nil
}

// verifyConfigHash checks configPath against the .checksums manifest in its
// directory. A missing manifest, or a manifest without an entry for this
// file, skips verification; a mismatching hash is fatal.
func verifyConfigHash(configPath string) error {
	manifest, err := loadChecksums(filepath.Dir(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	expected, ok := manifest.Hashes[filepath.Base(configPath)]
	if !ok {
		return nil
	}

	actual, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: orchd config hash-update",
			filepath.Base(configPath), expected, actual)
	}
	return nil
}

func loadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ".checksums"))
	if err != nil {
		return nil, err
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	if manifest.Hashes == nil {
		manifest.Hashes = make(map[string]string)
	}
	return &manifest, nil
}
