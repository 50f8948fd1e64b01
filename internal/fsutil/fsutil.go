// Package fsutil provides filesystem and identity helpers shared across
// the pipeline: content hashing, document id derivation, MIME detection,
// and atomic file writes.
package fsutil

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// HashFile computes the SHA-256 hash of a file's contents.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// HashBytes computes the SHA-256 hash of the provided bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DocumentID derives a stable document id from a file path.
// The id is "doc_" plus the first eight bytes of sha256(path) reduced
// modulo 10^7, zero-padded to seven digits. Deterministic across
// processes so reprocessing a file lands on the same vector store keys.
func DocumentID(filePath string) string {
	sum := sha256.Sum256([]byte(filePath))
	n := binary.BigEndian.Uint64(sum[:8]) % 10_000_000
	return fmt.Sprintf("doc_%07d", n)
}

// DetectMIME determines the MIME type of content from the file extension,
// falling back to content sniffing.
func DetectMIME(path string, content []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	extMime := extensionToMIME(ext)
	if extMime == "" {
		extMime = strings.TrimSpace(mime.TypeByExtension(ext))
		if idx := strings.Index(extMime, ";"); idx != -1 {
			extMime = strings.TrimSpace(extMime[:idx])
		}
	}

	var sniffed string
	if len(content) > 0 {
		sniffed = http.DetectContentType(content)
		if idx := strings.Index(sniffed, ";"); idx != -1 {
			sniffed = strings.TrimSpace(sniffed[:idx])
		}
	}

	if extMime != "" {
		if sniffed == "" || sniffed == "application/octet-stream" || sniffed == "text/plain" {
			return extMime
		}
	}

	if sniffed != "" {
		return sniffed
	}

	if extMime != "" {
		return extMime
	}

	return "application/octet-stream"
}

func extensionToMIME(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "text/yaml"
	case ".html", ".htm":
		return "text/html"
	case ".csv":
		return "text/csv"
	case ".xml":
		return "application/xml"
	default:
		return ""
	}
}

// FileType returns the lowercase extension without the leading dot,
// e.g. "pdf" for "report.pdf". Empty when the file has no extension.
func FileType(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// TitleFromPath returns the basename without extension, the fallback
// title for documents whose converter exposes none.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// AtomicWriteFile writes data to path via a temp file in the same
// directory followed by a rename, so readers never observe a partial
// file. The parent directory is created if missing.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %q; %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file; %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file; %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file; %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file; %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file; %w", err)
	}

	return nil
}
