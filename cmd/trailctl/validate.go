package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"audittrail/pkg/platform/audit/schema"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Check every line against the trail schema and its digest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer in.Close()
			return validate(in, cmd.OutOrStdout())
		},
	}
}

// validate reports every bad line and fails if there was at least one.
func validate(in io.Reader, out io.Writer) error {
	var total, bad int
	err := eachLine(in, func(l line) error {
		total++
		if err := checkLine(l); err != nil {
			bad++
			fmt.Fprintf(out, "line %d: %v\n", l.number, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d checked, %d invalid\n", total, bad)
	if bad > 0 {
		return fmt.Errorf("%d of %d trails invalid", bad, total)
	}
	return nil
}

func checkLine(l line) error {
	if !l.isEnvelope() {
		return schema.ValidateTrail(l.data)
	}
	if err := schema.Validate(l.data); err != nil {
		return err
	}
	_, record, err := decodeTrail(l)
	if err != nil {
		return err
	}
	return record.Verify()
}
