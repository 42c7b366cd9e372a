// Package fsutil resolves the files the music service reads and writes: artifact keys,
// WAV output paths and model checkpoints.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvCheckpointDir names a directory searched for checkpoints given by name only.
const EnvCheckpointDir = "MUSICGEN_CHECKPOINT_DIR"

const (
	wavExtension   = ".wav"
	dirPermissions = 0o750
	maxKeyLength   = 128
)

// Path errors.
var (
	ErrNotWAVPath         = errors.New("output path must end in .wav")
	ErrCheckpointNotFound = errors.New("model checkpoint not found")
)

// EnsureDir creates path and its parents when missing.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// IsWAVPath reports whether path names a .wav file.
func IsWAVPath(path string) bool {
	base := filepath.Base(path)

	return strings.EqualFold(filepath.Ext(base), wavExtension) && len(base) > len(wavExtension)
}

// PrepareOutput checks that path names a WAV file, creates its directory and returns
// the absolute path to write.
func PrepareOutput(path string) (string, error) {
	if !IsWAVPath(path) {
		return "", fmt.Errorf("%w: %q", ErrNotWAVPath, path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("could not resolve absolute path for %q: %w", path, err)
	}

	err = EnsureDir(filepath.Dir(absPath))
	if err != nil {
		return "", err
	}

	return absPath, nil
}

// ValidKey reports whether key can name an artifact file directly inside the store
// directory: one path element of letters, digits, '.', '-' or '_', not starting with
// a dot.
func ValidKey(key string) bool {
	if key == "" || len(key) > maxKeyLength || key[0] == '.' {
		return false
	}

	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_':
		default:
			return false
		}
	}

	return true
}

// ResolveCheckpoint returns the absolute path of a checkpoint file or directory. A bare
// name that does not exist relative to the working directory is also looked up in
// $MUSICGEN_CHECKPOINT_DIR.
func ResolveCheckpoint(path string) (string, error) {
	candidates := []string{path}

	if dir := os.Getenv(EnvCheckpointDir); dir != "" && !filepath.IsAbs(path) {
		candidates = append(candidates, filepath.Join(dir, path))
	}

	for _, candidate := range candidates {
		_, err := os.Stat(candidate)
		if err == nil {
			return filepath.Abs(candidate)
		}

		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("error checking checkpoint %q: %w", candidate, err)
		}
	}

	return "", fmt.Errorf("%w: %s", ErrCheckpointNotFound, path)
}

// DescribeAudio summarizes a WAV artifact for humans, e.g. "5.0s, 312.6 KB".
func DescribeAudio(samples, sampleRate int, size int64) string {
	seconds := 0.0
	if sampleRate > 0 {
		seconds = float64(samples) / float64(sampleRate)
	}

	const kilobyte = 1024

	if size < kilobyte {
		return fmt.Sprintf("%.1fs, %d B", seconds, size)
	}

	if size < kilobyte*kilobyte {
		return fmt.Sprintf("%.1fs, %.1f KB", seconds, float64(size)/kilobyte)
	}

	return fmt.Sprintf("%.1fs, %.1f MB", seconds, float64(size)/(kilobyte*kilobyte))
}
