package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// docGenerators write the command tree under dir in one format.
var docGenerators = map[string]func(root *cobra.Command, dir string) error{
	"man": func(root *cobra.Command, dir string) error {
		return doc.GenManTree(root, &doc.GenManHeader{
			Title:   "ANTFTP",
			Section: "1",
			Source:  "antftp " + version,
			Manual:  "antftp manual",
		}, dir)
	},
	"markdown": doc.GenMarkdownTree,
	"rest":     doc.GenReSTTree,
	"yaml":     doc.GenYamlTree,
}

var docsCmd = &cobra.Command{
	Use:    "gen-docs",
	Short:  "Generate documentation for antftp",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runGenDocs,
}

func init() {
	docsCmd.Flags().String("dir", "docs", "output directory")
	docsCmd.Flags().String("format", "man", "output format ("+strings.Join(docFormats(), ", ")+")")
}

func docFormats() []string {
	return slices.Sorted(maps.Keys(docGenerators))
}

func runGenDocs(cmd *cobra.Command, _ []string) error {
	dir, _ := cmd.Flags().GetString("dir")       //nolint:errcheck // flag name is hardcoded
	format, _ := cmd.Flags().GetString("format") //nolint:errcheck // flag name is hardcoded

	gen, ok := docGenerators[format]
	if !ok {
		return fmt.Errorf("unknown format %q (use %s)", format, strings.Join(docFormats(), ", "))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	root := cmd.Root()
	root.DisableAutoGenTag = true
	return gen(root, dir)
}
