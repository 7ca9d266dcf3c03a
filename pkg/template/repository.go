package template

import (
	"log/slog"
	"os"
	"path/filepath"
)

// DirRepository is a file-backed include resolver. It maps a template name
// to the file <dir>/<name><suffix> and hands out templates that keep the
// repository as their own resolver, so included templates can include
// further templates themselves.
type DirRepository struct {
	dir    string
	suffix string
	logger *slog.Logger
}

// NewDirRepository creates a repository rooted at dir. The suffix (for
// example ".tmpl") is appended to every resolved name and may be empty.
func NewDirRepository(dir, suffix string, logger *slog.Logger) *DirRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirRepository{dir: dir, suffix: suffix, logger: logger}
}

// Get loads the named template from the repository directory. File errors
// (most commonly fs.ErrNotExist) are returned unwrapped so callers can
// inspect them directly.
func (r *DirRepository) Get(name string) (*Template, error) {
	path := filepath.Join(r.dir, name+r.suffix)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("loaded template", slog.String("name", name), slog.String("path", path))
	return New(string(content),
		WithResolver(r),
		WithFilename(name+r.suffix),
		WithLogger(r.logger),
	), nil
}
