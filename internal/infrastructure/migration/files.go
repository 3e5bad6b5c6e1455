package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode"
)

// VersionLayout is the timestamp layout of migration versions
const VersionLayout = "20060102150405"

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

var fileTemplate = template.Must(template.New("migration").Parse(`-- Migration: {{.Name}}{{if .Down}} (Rollback){{end}}
{{- if .Description}}
-- Description: {{.Description}}
{{- end}}

`))

// File is one up/down migration pair
type File struct {
	Version  uint64
	Name     string
	UpPath   string
	DownPath string
}

// Base returns the file name without the direction suffix
func (f File) Base() string {
	return fmt.Sprintf("%d_%s", f.Version, f.Name)
}

// Files lists the migrations in dir ordered by version. Every up file must
// have a matching down file and versions must be unique.
func Files(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	byVersion := make(map[uint64]*File)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		var base string
		var up bool
		switch {
		case strings.HasSuffix(name, upSuffix):
			base, up = strings.TrimSuffix(name, upSuffix), true
		case strings.HasSuffix(name, downSuffix):
			base = strings.TrimSuffix(name, downSuffix)
		default:
			continue
		}

		version, title, err := parseBase(base)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		f, ok := byVersion[version]
		if !ok {
			f = &File{Version: version, Name: title}
			byVersion[version] = f
		} else if f.Name != title {
			return nil, fmt.Errorf("version %d used by %q and %q", version, f.Name, title)
		}
		path := filepath.Join(dir, name)
		if up {
			f.UpPath = path
		} else {
			f.DownPath = path
		}
	}

	files := make([]File, 0, len(byVersion))
	for _, f := range byVersion {
		if f.UpPath == "" || f.DownPath == "" {
			return nil, fmt.Errorf("migration %s is missing its up or down file", f.Base())
		}
		files = append(files, *f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

func parseBase(base string) (uint64, string, error) {
	head, title, ok := strings.Cut(base, "_")
	if !ok || title == "" {
		return 0, "", fmt.Errorf("expected <version>_<name>")
	}
	version, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid version %q", head)
	}
	return version, title, nil
}

// Create writes an empty up/down pair for name into dir, versioned by now
func Create(dir, name, description string, now time.Time) (*File, error) {
	title := sanitizeName(name)
	if title == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations directory: %w", err)
	}

	version, _ := strconv.ParseUint(now.UTC().Format(VersionLayout), 10, 64)
	existing, err := Files(dir)
	if err != nil {
		return nil, err
	}
	if n := len(existing); n > 0 && existing[n-1].Version >= version {
		return nil, fmt.Errorf("version %d is not after the latest migration %s", version, existing[n-1].Base())
	}

	f := &File{Version: version, Name: title}
	f.UpPath = filepath.Join(dir, f.Base()+upSuffix)
	f.DownPath = filepath.Join(dir, f.Base()+downSuffix)

	if err := writeTemplate(f.UpPath, title, description, false); err != nil {
		return nil, err
	}
	if err := writeTemplate(f.DownPath, title, description, true); err != nil {
		_ = os.Remove(f.UpPath)
		return nil, err
	}
	return f, nil
}

func writeTemplate(path, name, description string, down bool) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()
	return fileTemplate.Execute(out, struct {
		Name, Description string
		Down              bool
	}{name, description, down})
}

// sanitizeName lower-cases name and collapses separators to single underscores
func sanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}
