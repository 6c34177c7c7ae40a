package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newViewCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "view [file|-]",
		Short: "Print trails from a JSONL file as trees",
		Long: "Reads record envelopes or bare trail documents, one per line, and prints\n" +
			"each as an indented tree (or as indented JSON with --json).",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer in.Close()
			return view(in, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print indented JSON instead of a tree")
	return cmd
}

func view(in io.Reader, out io.Writer, asJSON bool) error {
	return eachLine(in, func(l line) error {
		trail, record, err := decodeTrail(l)
		if err != nil {
			return fmt.Errorf("line %d: %w", l.number, err)
		}
		if record != nil {
			if _, err := fmt.Fprintf(out, "# %s  %s  %s\n", record.ID, record.Digest, record.RequestID); err != nil {
				return err
			}
		}
		if asJSON {
			data, err := trail.RenderIndent()
			if err != nil {
				return fmt.Errorf("line %d: %w", l.number, err)
			}
			_, err = fmt.Fprintf(out, "%s\n", data)
			return err
		}
		return trail.WriteTree(out)
	})
}
