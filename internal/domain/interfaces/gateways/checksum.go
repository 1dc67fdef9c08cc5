package gateways

import "context"

// ChecksumCalculator hashes artifacts on local storage
type ChecksumCalculator interface {
	// CalculateChecksum returns the hex SHA-256 of the file at path
	CalculateChecksum(path string) (string, error)

	// VerifyChecksum fails when the file no longer matches expected
	VerifyChecksum(ctx context.Context, path, expected string) error
}
