package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ovchat/internal/acquire"
	"ovchat/internal/manager"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDevicesCmd(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List available inference devices and the selected one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(cmd.Context(), o.cfg)
			if err != nil {
				return err
			}
			d := m.Devices()
			if asJSON {
				return printJSON(cmd.OutOrStdout(), d)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "available:  %s\n", strings.Join(d.Available, " "))
			fmt.Fprintf(out, "preference: %s\n", strings.Join(d.Preference, " "))
			if d.Selected == "" {
				fmt.Fprintln(out, "selected:   (none)")
			} else {
				fmt.Fprintf(out, "selected:   %s\n", d.Selected)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newModelsCmd(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the model catalog and converted models on disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(cmd.Context(), o.cfg)
			if err != nil {
				return err
			}
			local, err := m.ListModels()
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"catalog": m.Catalog(), "local": local})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "catalog:")
			for _, id := range m.Catalog() {
				fmt.Fprintf(out, "  %s\n", id)
			}
			fmt.Fprintln(out, "converted:")
			if len(local) == 0 {
				fmt.Fprintln(out, "  (none)")
			}
			for _, l := range local {
				fmt.Fprintf(out, "  %-48s %8.2f MB  %s\n", l.ID, l.SizeMB, l.Path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newCommandCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "command",
		Short: "Print the conversion command for the current selection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(cmd.Context(), o.cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ConversionCommand())
			return nil
		},
	}
}

func newAcquireCmd(o *options) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Make sure the selected model is converted on disk",
		Long: "Uses an existing conversion when present, otherwise downloads a " +
			"preconverted copy from the hub or runs the converter.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(cmd.Context(), o.cfg)
			if err != nil {
				return err
			}
			if check {
				if err := reportSanity(cmd.OutOrStdout(), m.SanityCheck()); err != nil {
					return err
				}
			}
			res, err := m.Acquire(cmd.Context(), m.AllowRemote())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model: %s (%s)\n", res.Dir, res.Source)
			if res.Command != "" {
				fmt.Fprintf(out, "ran:   %s\n", res.Command)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Check the converter and device before acquiring")
	return cmd
}

func reportSanity(w io.Writer, r manager.SanityReport) error {
	for _, e := range r.Errors {
		fmt.Fprintf(w, "check: %s\n", e)
	}
	if !r.OK() {
		return fmt.Errorf("sanity check failed")
	}
	return nil
}

func newSizeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "size [dir]",
		Short: "Print the weights size of a converted model in MB",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			} else {
				m, err := newManager(cmd.Context(), o.cfg)
				if err != nil {
					return err
				}
				dir = m.Descriptor().Dir
			}
			mb, err := acquire.ModelSizeMB(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f MB\n", mb)
			return nil
		},
	}
}
