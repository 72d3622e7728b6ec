package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	c, err := loadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(defaultConfig(), c); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rsscope.yml")
	yml := `addr: ":9000"
scope:
  addr: 10.0.0.7
  mode: hiLAN
  channels: [1, 3]
  visaTimeout: 2s
  fileFormat: fits
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	expected := defaultConfig()
	expected.Addr = ":9000"
	expected.Scope.Addr = "10.0.0.7"
	expected.Scope.Mode = "hiLAN"
	expected.Scope.Channels = []int{1, 3}
	expected.Scope.VisaTimeout = 2 * time.Second
	expected.Scope.FileFormat = "fits"
	if diff := cmp.Diff(expected, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rsscope.yml")
	if err := os.WriteFile(path, []byte("scope:\n  addr: 10.0.0.7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RSSCOPE_SCOPE_ADDR", "10.0.0.8")
	t.Setenv("RSSCOPE_SCOPE_OPCTIMEOUT", "30s")
	t.Setenv("RSSCOPE_NOT_A_KEY", "ignored")
	c, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Scope.Addr != "10.0.0.8" {
		t.Errorf("expected the environment to win, got %q", c.Scope.Addr)
	}
	if c.Scope.OPCTimeout != 30*time.Second {
		t.Errorf("expected 30s OPC timeout, got %v", c.Scope.OPCTimeout)
	}
}

func TestEnvKey(t *testing.T) {
	cb := envKey([]string{"addr", "scope.visaTimeout", "scope.fileName"})
	cases := map[string]string{
		"RSSCOPE_ADDR":              "addr",
		"RSSCOPE_SCOPE_VISATIMEOUT": "scope.visaTimeout",
		"RSSCOPE_SCOPE_FILENAME":    "scope.fileName",
		"RSSCOPE_SCOPE_BOGUS":       "",
	}
	for in, expected := range cases {
		if got := cb(in); got != expected {
			t.Errorf("%s: expected %q got %q", in, expected, got)
		}
	}
}

func TestMkconfRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rsscope.yml")
	if err := mkconf(path); err != nil {
		t.Fatal(err)
	}
	c, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(defaultConfig(), c); diff != "" {
		t.Errorf("written defaults did not load back (-want +got):\n%s", diff)
	}
}
