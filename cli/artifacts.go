package cli

// This file contains artifact relocation and log-capture helpers shared
// by the build executor.

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	logTailLines = 64
	logTailBytes = 8 * 1024
)

// tailOf returns a bounded tail of captured output so failure records stay
// small in the manifest.
func tailOf(output string) string {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) > logTailLines {
		lines = lines[len(lines)-logTailLines:]
	}
	tail := strings.Join(lines, "\n")
	if len(tail) > logTailBytes {
		tail = tail[len(tail)-logTailBytes:]
		// The byte cut can land inside a multi-byte rune; drop the
		// continuation bytes so the stored tail stays valid UTF-8.
		for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
			tail = tail[1:]
		}
	}
	return tail
}

// moveFile renames src to dst, falling back to copy-and-remove when the
// store lives on a different filesystem.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	// Copy file permissions
	sourceInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, sourceInfo.Mode())
}
