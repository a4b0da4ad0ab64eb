package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"overlay-builder/scene"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "overlayctl",
		Short: "Inspect and repair overlay scene files",
		Long: `overlayctl works on exported overlay scenes and template bundles.
JSON files are read as scene snapshots; .yaml and .yml files as template bundles.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetOutput(cmd.ErrOrStderr())
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			logrus.SetLevel(logrus.WarnLevel)
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newValidateCmd(),
		newReconcileCmd(),
		newRenderCmd(),
		newTemplateCmd(),
		newTokenCmd(),
	)
	return root
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// readBundle reads a template bundle in either format.
func readBundle(path string) (scene.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scene.Bundle{}, err
	}
	b, err := scene.ParseBundle(data, isYAML(path))
	if err != nil {
		return scene.Bundle{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return b, nil
}

// readScene loads a snapshot file, or a bundle's scene when path is YAML.
func readScene(path string) (scene.Snapshot, error) {
	if isYAML(path) {
		b, err := readBundle(path)
		if err != nil {
			return scene.Snapshot{}, err
		}
		return b.Snapshot(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return scene.Snapshot{}, err
	}
	s, err := scene.ParseSnapshot(data)
	if err != nil {
		return scene.Snapshot{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}
