// Package nfetest holds NF-e fixtures shared by the package tests.
package nfetest

import (
	"embed"
	"path"
	"testing"
)

//go:embed testdata/*.xml
var fixtures embed.FS

// Fixture names
const (
	Minimal     = "minimal.xml"
	Full        = "full.xml"
	MissingProd = "missing_prod.xml"
	Latin1      = "latin1.xml"
)

// Keys of the fixtures
const (
	MinimalKey     = "41240112345678000195550010000001231000001234"
	FullKey        = "35240311222333000181550020000045671987654321"
	MissingProdKey = "43231012345678000195550010000000771000000770"
)

// Fixture returns the content of a testdata file
func Fixture(t testing.TB, name string) []byte {
	t.Helper()
	data, err := fixtures.ReadFile(path.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}
