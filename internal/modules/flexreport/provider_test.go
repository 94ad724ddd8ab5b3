package flexreport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryProviderFetchLatest(t *testing.T) {
	dir := t.TempDir()

	older := filepath.Join(dir, "statement-old.xml")
	newer := filepath.Join(dir, "statement-new.xml")
	require.NoError(t, os.WriteFile(older, []byte("<old/>"), 0644))
	require.NoError(t, os.WriteFile(newer, []byte("<new/>"), 0644))

	// Make modification order explicit
	now := time.Now()
	require.NoError(t, os.Chtimes(older, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, now, now))

	// Non-XML files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0644))

	provider := NewDirectoryProvider(dir, zerolog.Nop())

	doc, err := provider.FetchLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<new/>", string(doc))
}

func TestDirectoryProviderEmptyDirectory(t *testing.T) {
	provider := NewDirectoryProvider(t.TempDir(), zerolog.Nop())

	_, err := provider.FetchLatest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no statement files")
}

func TestDirectoryProviderCancelledContext(t *testing.T) {
	provider := NewDirectoryProvider(t.TempDir(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.FetchLatest(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
