package commands

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfacade/openfacade/pkg/intentfile"
	"github.com/openfacade/openfacade/pkg/resolver"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <intent-file>...",
		Short: "Validate intent files",
		Long: `Validate CUE intent files without resolving a plan.

This command checks:
  - CUE syntax validity
  - Intent schema conformance (field types, ranges, patterns)
  - Cross-flag constraints in evaluation order`,
		Example: `  # Validate a single intent file
  facade validate deploy.cue

  # Validate several files, machine-readable report
  facade validate --json staging.cue production.cue`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parser, err := intentfile.NewParser()
			if err != nil {
				return err
			}

			failed := 0
			for _, path := range args {
				if err := validateIntentFile(cmd, parser, path); err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d intent files invalid", failed, len(args))
			}
			return nil
		},
	}

	return cmd
}

func validateIntentFile(cmd *cobra.Command, parser *intentfile.Parser, path string) error {
	parsed, err := parser.Parse(cmd.Context(), path)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("Failed to parse intent file")
		return err
	}

	// Schema errors first; constraint validation only runs on a decodable
	// intent.
	if len(parsed.Errors) == 0 {
		intent := parsed.Config.ToIntent().ApplyDefaults()
		if err := resolver.Validate(intent); err != nil {
			parsed.Errors = append(parsed.Errors, intentfile.ValidationError{
				File:     path,
				Path:     resolver.ConstraintOf(err),
				Message:  err.Error(),
				Severity: "error",
			})
		}
	}

	if jsonOutput {
		report, err := json.MarshalIndent(parsed, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(report))
	} else {
		for _, e := range parsed.Errors {
			log.Error().
				Str("file", e.File).
				Int("line", e.Line).
				Str("path", e.Path).
				Msg(e.Message)
		}
	}

	if len(parsed.Errors) > 0 {
		return fmt.Errorf("%s: %d validation errors", path, len(parsed.Errors))
	}
	log.Info().Str("file", path).Msg("Intent file is valid")
	return nil
}
