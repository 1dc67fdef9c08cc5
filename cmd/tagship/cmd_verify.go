package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	adapters "github.com/ochairo/tagship/internal/domain-adapters/gateways"
)

func newVerifyCmd() *cobra.Command {
	var (
		checksumFile string
		sigFile      string
		keyFile      string
	)

	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify a downloaded release file against its sidecars",
		Long: `Verify checks a published file against its <file>.sha256 and, when a
public key is given, its <file>.asc detached signature. Sidecars next to the
file are picked up automatically.`,
		Example: `  tagship verify Lapce-macos.dmg
  tagship verify Lapce-windows.msi --key release.pub.asc`,
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]
			if checksumFile == "" && fileExists(filePath+".sha256") {
				checksumFile = filePath + ".sha256"
			}
			if sigFile == "" && keyFile != "" && fileExists(filePath+".asc") {
				sigFile = filePath + ".asc"
			}
			if sigFile != "" && keyFile == "" {
				return withExitCode(exitInvalid, fmt.Errorf("--key is required to verify %s", sigFile))
			}
			if checksumFile == "" && sigFile == "" {
				return withExitCode(exitInvalid, fmt.Errorf("no checksum or signature found for %s", filePath))
			}

			cmd.Printf("Verifying %s\n", filepath.Base(filePath))

			if checksumFile != "" {
				//nolint:gosec // G304: checksumFile is user-provided for verification
				expected, err := os.ReadFile(checksumFile)
				if err != nil {
					return withExitCode(exitFailed, err)
				}
				if err := adapters.NewArtifactChecksums().VerifyChecksum(cmd.Context(), filePath, string(expected)); err != nil {
					return withExitCode(exitFailed, err)
				}
				cmd.Println("  checksum: ok")
			}

			if sigFile != "" {
				if err := adapters.NewPGPSidecars().VerifySidecar(filePath, sigFile, keyFile); err != nil {
					return withExitCode(exitFailed, err)
				}
				cmd.Println("  signature: ok")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&checksumFile, "checksum", "", "checksum sidecar (default <file>.sha256)")
	cmd.Flags().StringVar(&sigFile, "sig", "", "detached signature (default <file>.asc)")
	cmd.Flags().StringVar(&keyFile, "key", "", "armored public key for signature verification")
	return cmd
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
