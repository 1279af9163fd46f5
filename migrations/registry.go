package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	voicebridge "github.com/goliatone/go-voice-bridge"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	sourceLabel = "go-voice-bridge"
)

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

// Filesystems returns the embedded migration sources, one per supported
// dialect. Each source must carry at least one up migration.
func Filesystems() ([]FilesystemSpec, error) {
	base, err := fs.Sub(voicebridge.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations: data/sql/migrations not found: %w", err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: "data/sql/migrations", FS: base},
		{Dialect: DialectSQLite, Path: "data/sql/migrations/sqlite", FS: sqliteFS},
	}

	for _, fsys := range filesystems {
		matches, globErr := fs.Glob(fsys.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", fsys.Dialect, fsys.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", fsys.Dialect, fsys.Path)
		}
	}

	return filesystems, nil
}

// Register feeds the embedded migrations to registerFn. With no dialects
// given, every supported dialect is registered; naming dialects narrows the
// set.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	targets := normalizeDialects(dialects)
	if len(targets) == 0 {
		targets = []string{DialectPostgres, DialectSQLite}
	}

	filesystems, err := Filesystems()
	if err != nil {
		return err
	}

	for _, fsys := range filesystems {
		if !slices.Contains(targets, fsys.Dialect) {
			continue
		}
		if err := registerFn(ctx, fsys.Dialect, sourceLabel, fsys.FS); err != nil {
			return fmt.Errorf("migrations: register %s (%s): %w", fsys.Dialect, fsys.Path, err)
		}
	}
	return nil
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" || slices.Contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
