package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ochairo/tagship/internal/domain/entities"
)

func newValidateTagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-tag <tag>",
		Short: "Check that a tag is a valid release tag",
		Example: `  tagship validate-tag v0.4.0
  tagship validate-tag refs/tags/v0.4.0-rc.1`,
		Args: cobra.ExactArgs(1),
		// No config or logging needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := entities.ParseReleaseTag(normalizeTag(args[0]))
			if err != nil {
				return withExitCode(exitInvalid, err)
			}

			kind := "release"
			if tag.Prerelease() {
				kind = "prerelease"
			}
			cmd.Printf("%s is a valid %s tag\n", tag, kind)
			return nil
		},
	}
}

// normalizeTag accepts a full ref as pushed by CI
func normalizeTag(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "refs/tags/")
}
