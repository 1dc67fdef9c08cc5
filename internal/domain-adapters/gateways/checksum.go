package gateways

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ArtifactChecksums computes and checks SHA-256 digests of artifacts on disk
type ArtifactChecksums struct{}

// NewArtifactChecksums creates a new checksum calculator
func NewArtifactChecksums() *ArtifactChecksums {
	return &ArtifactChecksums{}
}

// CalculateChecksum returns the lowercase hex SHA-256 of the file at path
func (c *ArtifactChecksums) CalculateChecksum(path string) (string, error) {
	//nolint:gosec // G304: Artifact path comes from the pipeline work directory
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash artifact: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum compares the file digest against expected. expected may be a
// bare digest or a "digest  filename" sidecar line.
func (c *ArtifactChecksums) VerifyChecksum(ctx context.Context, path, expected string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	want, err := parseChecksumLine(expected)
	if err != nil {
		return err
	}

	got, err := c.CalculateChecksum(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", path, want, got)
	}
	return nil
}

// parseChecksumLine extracts the digest from the first line of a sha256sum-style record
func parseChecksumLine(line string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(line))
	if !scanner.Scan() {
		return "", fmt.Errorf("empty checksum")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum")
	}

	digest := strings.ToLower(fields[0])
	if len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("invalid sha256 digest length %d", len(digest))
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("invalid sha256 digest: %w", err)
	}
	return digest, nil
}
