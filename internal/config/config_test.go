package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DefaultConfig_Has_Documented_Defaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Empty(t, cfg.Path)
	assert.Equal(t, DefaultCacheCapacity, cfg.CacheCapacity)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
}

func Test_Parse_Fills_Only_Fields_Present_In_File(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`{"path": "/tmp/store.log"}`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/store.log", cfg.Path)
	assert.Equal(t, DefaultCacheCapacity, cfg.CacheCapacity)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
}

func Test_Parse_Accepts_JSONC_Comments_And_Trailing_Commas(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`{
		// path to the log file
		"path": "/tmp/store.log",
		"cache_capacity": 500, // keep this modest
	}`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/store.log", cfg.Path)
	assert.Equal(t, 500, cfg.CacheCapacity)
}

func Test_Parse_Rejects_Malformed_JSON(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{"path": `))
	require.ErrorIs(t, err, ErrInvalidJSON)
}

func Test_Validate_Rejects_Missing_Path(t *testing.T) {
	t.Parallel()

	_, err := Validate(Config{})
	require.ErrorIs(t, err, ErrPathRequired)
}

func Test_Validate_Normalizes_NonPositive_CacheCapacity(t *testing.T) {
	t.Parallel()

	cfg, err := Validate(Config{Path: "/tmp/store.log", CacheCapacity: -1})
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheCapacity, cfg.CacheCapacity)
}

func Test_Validate_Fills_Default_ListenAddr_When_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := Validate(Config{Path: "/tmp/store.log"})
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
}

func Test_Load_Reads_And_Parses_File_From_Disk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bitpystore.jsonc")

	require.NoError(t, os.WriteFile(path, []byte(`{
		"path": "data.log",
		"listen_addr": "0.0.0.0:9000",
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data.log", cfg.Path)
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
}

func Test_Load_Returns_Error_When_File_Missing(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.jsonc"))
	require.Error(t, err)
}
