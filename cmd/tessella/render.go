package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CTAG07/Tessella/pkg/template"
)

var renderCmd = &cobra.Command{
	Use:   "render [flags] template-file",
	Short: "Render a template file",
	Long: `Render reads a template file, expands its {{...}} directives against
the values in the context file, and writes the result to stdout or to the
file given with --output.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().String("context", "", "context file with the root values (YAML or JSON)")
	renderCmd.Flags().StringP("output", "o", "", "write the result to a file instead of stdout")
	renderCmd.Flags().String("templates", "", "directory searched for {{>name}} includes")
	renderCmd.Flags().String("suffix", ".tmpl", "file suffix appended to include names with --templates")
	renderCmd.Flags().String("store", "", "template database searched for {{>name}} includes")
	renderCmd.Flags().Bool("watch", false, "re-render whenever the template or context file changes")
}

func runRender(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	templatePath := args[0]
	contextPath, _ := cmd.Flags().GetString("context")
	outputPath, _ := cmd.Flags().GetString("output")
	templatesDir, _ := cmd.Flags().GetString("templates")
	suffix, _ := cmd.Flags().GetString("suffix")
	storePath, _ := cmd.Flags().GetString("store")
	watch, _ := cmd.Flags().GetBool("watch")

	if templatesDir != "" && storePath != "" {
		return errors.New("--templates and --store are mutually exclusive")
	}

	var resolver template.IncludeResolver
	if templatesDir != "" {
		resolver = template.NewDirRepository(templatesDir, suffix, logger)
	}
	if storePath != "" {
		s, cleanup, err := openStoreAt(storePath, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		resolver = s.Resolver(template.WithLogger(logger))
	}

	render := func() error {
		return renderOnce(templatePath, contextPath, outputPath, resolver, logger)
	}

	if err := render(); err != nil {
		if !watch {
			return err
		}
		// In watch mode a broken template is not fatal, the next save may
		// fix it.
		logger.Error("Render failed", slog.Any("error", err))
	}
	if !watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths := []string{templatePath}
	if contextPath != "" {
		paths = append(paths, contextPath)
	}
	return watchAndRender(ctx, paths, render, logger)
}

// renderOnce performs a single template-file render. The template file is
// re-read on every call so watch mode always sees the latest source.
func renderOnce(templatePath, contextPath, outputPath string, resolver template.IncludeResolver, logger *slog.Logger) error {
	source, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}
	values, err := loadContextFile(contextPath)
	if err != nil {
		return err
	}

	opts := []template.Option{
		template.WithFilename(filepath.Base(templatePath)),
		template.WithLogger(logger),
	}
	if resolver != nil {
		opts = append(opts, template.WithResolver(resolver))
	}

	result, err := template.New(string(source), opts...).Render(values)
	if err != nil {
		return err
	}

	if outputPath == "" {
		_, err = os.Stdout.WriteString(result)
		return err
	}
	if err = atomic.WriteFile(outputPath, strings.NewReader(result)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	logger.Info("Output written",
		slog.String("path", outputPath),
		slog.Int("bytes", len(result)),
	)
	return nil
}

// loadContextFile decodes the root context values from a YAML or JSON file.
// The format is chosen by file extension, everything that is not .json is
// treated as YAML.
func loadContextFile(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	values := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &values)
	default:
		err = yaml.Unmarshal(data, &values)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse context file %s: %w", path, err)
	}
	return values, nil
}

// watchAndRender blocks and re-runs render whenever one of the given files
// changes, until the context is cancelled. The parent directories are
// watched rather than the files themselves, since editors often replace
// files instead of writing them in place.
func watchAndRender(ctx context.Context, paths []string, render func() error, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func(watcher *fsnotify.Watcher) {
		_ = watcher.Close()
	}(watcher)

	targets := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err = watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	// Debounce timer, armed only while a change is pending.
	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}

	logger.Info("Watching for changes", slog.Int("files", len(targets)))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Watch stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !targets[abs] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce.Reset(100 * time.Millisecond)
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			logger.Error("Watcher error", slog.Any("error", watchErr))
		case <-debounce.C:
			if err = render(); err != nil {
				logger.Error("Render failed", slog.Any("error", err))
			} else {
				logger.Info("Re-rendered")
			}
		}
	}
}
