package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/msgaudit/internal/audit"
	"github.com/livinlefevreloca/msgaudit/internal/classify"
	"github.com/livinlefevreloca/msgaudit/internal/config"
	"github.com/livinlefevreloca/msgaudit/internal/directory"
	"github.com/livinlefevreloca/msgaudit/internal/javaser"
	"github.com/livinlefevreloca/msgaudit/internal/objtree"
	"github.com/livinlefevreloca/msgaudit/internal/payload"
)

func newDecodeCmd() *cobra.Command {
	var configPath string
	var directoryPath string

	c := &cobra.Command{
		Use:   "decode [payload]",
		Short: "Decode and classify one encoded payload from an argument or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("%w: %w", audit.ErrConfig, err)
			}

			var encoded string
			if len(args) == 1 {
				encoded = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read payload: %w", err)
				}
				encoded = string(data)
			}

			dir := directory.NewMemory()
			if directoryPath != "" {
				if dir, err = directory.LoadYAML(directoryPath); err != nil {
					return fmt.Errorf("%w: %w", audit.ErrDirectory, err)
				}
			}

			return decodeOne(cmd, cfg, encoded, directory.NewResolver(dir, cfg.Directory.NameAttributes))
		},
	}

	c.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (TOML)")
	c.Flags().StringVarP(&directoryPath, "directory", "d", "", "Directory export (YAML) used to resolve names")
	return c
}

func decodeOne(cmd *cobra.Command, cfg *config.Config, encoded string, resolver directory.Resolver) error {
	w := cmd.OutOrStdout()

	decoded, err := payload.NewUnwrapper(cfg.Payload.MaxDecodedBytes).Open(encoded)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "format: %s (%d bytes)\n", decoded.Format, len(decoded.Raw))

	in, err := classify.Decode(decoded)
	if err != nil {
		return err
	}
	switch in := in.(type) {
	case classify.TreeInput:
		printTree(w, in.Root, 0)
	case classify.GraphInput:
		printGraph(w, in.Root, 0, make(map[*javaser.Object]bool))
	}

	classifier, err := classify.New(cfg.Classifier)
	if err != nil {
		return fmt.Errorf("%w: %w", audit.ErrConfig, err)
	}
	msg, err := classifier.Classify(cmd.Context(), in, resolver)
	if err != nil {
		return fmt.Errorf("%w: %w", audit.ErrDirectory, err)
	}

	fmt.Fprintf(w, "kind: %s\n", msg.Kind)
	if msg.Kind == classify.KindLifecycleRule {
		fmt.Fprintf(w, "rule: %s\n", msg.Rule)
	}
	fmt.Fprintf(w, "summary: %s\n", msg.Summary())
	if len(msg.Detail) > 0 {
		fmt.Fprintf(w, "detail: %s\n", msg.DetailString())
	}
	fmt.Fprintf(w, "cleanup: %t\n", msg.Cleanup)
	return nil
}

func printTree(w io.Writer, n *objtree.Node, depth int) {
	if n == nil {
		return
	}
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Type)

	names := make([]string, 0, len(n.Attributes))
	for name := range n.Attributes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%q", name, n.Attributes[name])
	}
	fmt.Fprintln(w, b.String())

	for _, child := range n.Children {
		printTree(w, child, depth+1)
	}
}

// printGraph prints each object once; later references print the class only
func printGraph(w io.Writer, o *javaser.Object, depth int, seen map[*javaser.Object]bool) {
	indent := strings.Repeat("  ", depth)
	if seen[o] {
		fmt.Fprintf(w, "%s%s (see above)\n", indent, o.ClassName())
		return
	}
	seen[o] = true
	fmt.Fprintf(w, "%s%s\n", indent, o.ClassName())

	for _, name := range o.FieldNames() {
		v, _ := o.Field(name)
		if child, ok := v.(*javaser.Object); ok && child != nil {
			fmt.Fprintf(w, "%s  %s:\n", indent, name)
			printGraph(w, child, depth+2, seen)
			continue
		}
		fmt.Fprintf(w, "%s  %s = %s\n", indent, name, javaser.FormatScalar(v))
	}
}
