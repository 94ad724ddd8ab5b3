package flexreport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// DirectoryProvider picks up statement documents dropped into a
// directory by an external download process. FetchLatest returns the
// most recently modified XML file.
type DirectoryProvider struct {
	dir string
	log zerolog.Logger
}

// NewDirectoryProvider creates a provider reading from dir
func NewDirectoryProvider(dir string, log zerolog.Logger) *DirectoryProvider {
	return &DirectoryProvider{
		dir: dir,
		log: log.With().Str("component", "statement_provider").Logger(),
	}
}

// FetchLatest returns the contents of the newest statement file
func (p *DirectoryProvider) FetchLatest(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("reading statement directory: %w", err)
	}

	var newest string
	var newestMod int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".xml") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().UnixNano() > newestMod {
			newest = entry.Name()
			newestMod = info.ModTime().UnixNano()
		}
	}

	if newest == "" {
		return nil, fmt.Errorf("no statement files in %s", p.dir)
	}

	p.log.Debug().Str("file", newest).Msg("Reading statement file")

	return os.ReadFile(filepath.Join(p.dir, newest))
}
