package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/CTAG07/Tessella/pkg/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the template database",
}

func init() {
	storeCmd.PersistentFlags().String("db", "tessella.db", "path to the template database")
	storeImportCmd.Flags().String("suffix", ".tmpl", "suffix stripped from file names to form template names")
	storeExportCmd.Flags().StringP("output", "o", "", "write the export to a file instead of stdout")
	storeCmd.AddCommand(storeImportCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeShowCmd)
	storeCmd.AddCommand(storeDeleteCmd)
	storeCmd.AddCommand(storeExportCmd)
}

// openStore opens the database named by the --db flag and prepares a store
// over it. The returned cleanup function releases both.
func openStore(cmd *cobra.Command, logger *slog.Logger) (*store.Store, func(), error) {
	path, err := cmd.Flags().GetString("db")
	if err != nil {
		return nil, nil, err
	}
	return openStoreAt(path, logger)
}

func openStoreAt(path string, logger *slog.Logger) (*store.Store, func(), error) {
	db, err := initDB(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = store.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to set up schema: %w", err)
	}
	s, err := store.NewStore(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	cleanup := func() {
		s.Close()
		_ = db.Close()
	}
	return s, cleanup, nil
}

var storeImportCmd = &cobra.Command{
	Use:   "import <glob>",
	Short: "Import template files matching a glob pattern",
	Long: `Import stores every file matching the glob pattern (** is supported).
Template names are the matched paths relative to the fixed part of the
pattern, with the suffix stripped.`,
	Args: cobra.ExactArgs(1),
	RunE: runStoreImport,
}

func runStoreImport(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	suffix, _ := cmd.Flags().GetString("suffix")

	s, cleanup, err := openStore(cmd, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	base, pattern := doublestar.SplitPattern(filepath.ToSlash(args[0]))
	matches, err := doublestar.Glob(os.DirFS(base), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Errorf("invalid glob pattern %q: %w", args[0], err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no files match %q", args[0])
	}

	ctx := cmd.Context()
	for _, match := range matches {
		data, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(match)))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", match, err)
		}
		name := strings.TrimSuffix(match, suffix)
		if err = s.Put(ctx, name, string(data)); err != nil {
			return err
		}
		cmd.Printf("imported %s\n", name)
	}
	return nil
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, cleanup, err := openStore(cmd, newLogger(cmd))
		if err != nil {
			return err
		}
		defer cleanup()

		infos, err := s.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, info := range infos {
			cmd.Printf("%-40s %s\n", info.Name, info.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var storeShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print the source of a stored template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, cleanup, err := openStore(cmd, newLogger(cmd))
		if err != nil {
			return err
		}
		defer cleanup()

		source, err := s.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Print(source)
		return nil
	},
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, cleanup, err := openStore(cmd, newLogger(cmd))
		if err != nil {
			return err
		}
		defer cleanup()

		if err := s.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("deleted %s\n", args[0])
		return nil
	},
}

var storeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all stored templates as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		s, cleanup, err := openStore(cmd, newLogger(cmd))
		if err != nil {
			return err
		}
		defer cleanup()

		if output == "" {
			return s.Export(cmd.Context(), os.Stdout)
		}
		var buf bytes.Buffer
		if err := s.Export(cmd.Context(), &buf); err != nil {
			return err
		}
		if err := atomic.WriteFile(output, &buf); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		return nil
	},
}
