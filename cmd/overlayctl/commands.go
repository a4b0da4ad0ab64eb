package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"overlay-builder/handlers/auth"
	"overlay-builder/scene"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML emits v in block style with the same keys as its JSON form.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	plain(&doc)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

// plain drops the flow and quoting styles a JSON document decodes with.
func plain(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		plain(c)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a scene for structural problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readScene(args[0])
			if err != nil {
				return err
			}
			if err := scene.ValidateSnapshot(s); err != nil {
				return fmt.Errorf("%s is invalid:\n%w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d shapes, %d root layers)\n", args[0], len(s.Shapes), len(s.Layers))
			return nil
		},
	}
}

// newReconcileCmd rebuilds a scene's layers from its shapes. Layers without
// a shape are dropped and shapes without a layer get one.
func newReconcileCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "reconcile <file>",
		Short: "Repair the layer tree against the shape list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readScene(args[0])
			if err != nil {
				return err
			}
			ed := scene.NewEditor()
			ed.Load(s)
			if ed.Reconcile() {
				logrus.WithField("file", args[0]).Info("Layer tree reconciled")
			}
			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return writeJSON(out, ed.Snapshot())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the result to a file instead of stdout")
	return cmd
}

func newRenderCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Print the paint list of a scene, bottom first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readScene(args[0])
			if err != nil {
				return err
			}
			ed := scene.NewEditor()
			ed.Load(s)
			items := ed.Render()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), items)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tX\tY\tOPACITY\tBLEND\tVISIBLE\tDEPTH")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%.2f\t%s\t%t\t%d\n",
					it.ID, it.Type, it.X, it.Y, it.Opacity, it.CompositeOperation, it.Visible, it.Depth)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

// newTemplateCmd checks a template bundle and prints it normalized.
func newTemplateCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "template <file>",
		Short: "Validate a template bundle and print it normalized",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readBundle(args[0])
			if err != nil {
				return err
			}
			ed := scene.NewEditor()
			ed.LoadBundle(b)
			if err := ed.Validate(); err != nil {
				return fmt.Errorf("%s is invalid:\n%w", args[0], err)
			}
			snap := ed.Snapshot()
			b.Shapes, b.Layers = snap.Shapes, snap.Layers

			switch strings.ToLower(format) {
			case "json":
				return writeJSON(cmd.OutOrStdout(), b)
			case "yaml", "":
				return writeYAML(cmd.OutOrStdout(), b)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml or json)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var login, name string
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth.InitAuth()
			if login == "" {
				login = args[0]
			}
			token, err := auth.CreateJWT(args[0], login, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "Login name carried in the token (defaults to the user id)")
	cmd.Flags().StringVar(&name, "name", "", "Display name carried in the token")
	return cmd
}
