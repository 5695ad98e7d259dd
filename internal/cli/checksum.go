package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/edgelisp/internal/payload"
)

// ChecksumEntry is the checksum of one script file.
type ChecksumEntry struct {
	File     string `json:"file"`
	Checksum string `json:"checksum"` // 8 hex digits
	Value    uint32 `json:"value"`
}

// NewChecksumCommand creates the checksum command.
func NewChecksumCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checksum <script>...",
		Short: "Print the dedup checksum of scripts",
		Long: `Print the checksum a device uses to recognise a script it already runs.

A persistent script is not restarted when it is delivered again with the same
checksum.

Example:
  edgelisp checksum blink.lisp
  edgelisp checksum --format json *.lisp`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return checksumFiles(rootOpts, args, cmd)
		},
	}
	return cmd
}

func checksumFiles(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	entries := make([]ChecksumEntry, 0, len(paths))
	for _, path := range paths {
		code, err := readScript(path, cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read script", err)
		}
		sum := payload.Checksum(code)
		entries = append(entries, ChecksumEntry{
			File:     path,
			Checksum: fmt.Sprintf("%08x", sum),
			Value:    sum,
		})
	}

	if opts.Format == "json" {
		f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		return f.Success(entries)
	}

	for _, e := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", e.Checksum, e.File)
	}
	return nil
}
