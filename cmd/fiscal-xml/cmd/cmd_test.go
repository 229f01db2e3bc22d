package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/fiscal-xml/internal/nfetest"
	"github.com/rezonia/fiscal-xml/internal/processor"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.xml", []byte("<a/>"))
	b := writeFile(t, dir, "nested/b.XML", []byte("<b/>"))
	writeFile(t, dir, "notes.txt", []byte("skip"))

	files, err := collectFiles([]string{dir})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, files)

	files, err = collectFiles([]string{filepath.Join(dir, "*.xml")})
	require.NoError(t, err)
	assert.Equal(t, []string{a}, files)

	_, err = collectFiles([]string{filepath.Join(dir, "missing.xml")})
	assert.ErrorContains(t, err, "file not found")
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	p := processor.New()
	ctx := context.Background()

	ok := writeFile(t, dir, "ok.xml", nfetest.Fixture(t, nfetest.Minimal))
	result := validateFile(ctx, p, ok)
	assert.True(t, result.Valid)
	assert.Equal(t, nfetest.MinimalKey, result.DocumentKey)
	assert.Empty(t, result.Errors)

	broken := strings.Replace(string(nfetest.Fixture(t, nfetest.Minimal)), "<dest>", "<destino>", 1)
	broken = strings.Replace(broken, "</dest>", "</destino>", 1)
	result = validateFile(ctx, p, writeFile(t, dir, "broken.xml", []byte(broken)))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "dest")

	result = validateFile(ctx, p, filepath.Join(dir, "absent.xml"))
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "failed to read file")
}

func TestValidateFile_Strict(t *testing.T) {
	strictValidation = true
	t.Cleanup(func() { strictValidation = false })

	data := strings.Replace(string(nfetest.Fixture(t, nfetest.Minimal)), "12345678000195</CNPJ>", "12345678000196</CNPJ>", 1)
	path := writeFile(t, t.TempDir(), "nota.xml", []byte(data))

	result := validateFile(context.Background(), processor.New(), path)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "emitter tax id invalid: 12345678000196")
	assert.Empty(t, result.Warnings)
}
