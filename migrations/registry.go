package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	recaptcha "github.com/goliatone/go-recaptcha"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc receives one dialect filesystem, typically forwarding it to a
// go-persistence-bun client's RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

// NormalizeDialect maps driver names onto a migration dialect.
func NormalizeDialect(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", name)
	}
}

// Filesystems splits the migration tree into its postgres root and sqlite
// subdirectory. The embedded tree is used unless a source is given.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := recaptcha.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{
			Dialect: DialectPostgres,
			Path:    basePath,
			FS:      base,
		},
		{
			Dialect: DialectSQLite,
			Path:    pathJoin(basePath, "sqlite"),
			FS:      sqliteFS,
		},
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

// Register hands the audit log migrations of each requested dialect to
// registerFn. With no dialects every dialect is registered.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	targets := make(map[string]bool, len(dialects))
	for _, name := range dialects {
		dialect, err := NormalizeDialect(name)
		if err != nil {
			return err
		}
		targets[dialect] = true
	}

	filesystems, err := Filesystems()
	if err != nil {
		return err
	}
	for _, fsys := range filesystems {
		if len(targets) > 0 && !targets[fsys.Dialect] {
			continue
		}
		if err := registerFn(ctx, fsys.Dialect, fsys.FS); err != nil {
			return fmt.Errorf("migrations: register %s (%s): %w", fsys.Dialect, fsys.Path, err)
		}
	}
	return nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	// fs.Sub does not check existence
	info, err := fs.Stat(root, "data/sql/migrations")
	if err == nil && info.IsDir() {
		sub, subErr := fs.Sub(root, "data/sql/migrations")
		if subErr != nil {
			return nil, "", fmt.Errorf("migrations: resolve data/sql/migrations: %w", subErr)
		}
		return sub, "data/sql/migrations", nil
	}
	if err == nil {
		err = fs.ErrNotExist
	}

	entries, readErr := fs.ReadDir(root, ".")
	if readErr == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
				return root, ".", nil
			}
		}
	}

	return nil, "", fmt.Errorf("migrations: data/sql/migrations not found: %w", err)
}

func pathJoin(base string, suffix string) string {
	if base == "." {
		return suffix
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(suffix, "/")
}
