package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestConfigDir(t *testing.T) {
	t.Run("returns override when set", func(t *testing.T) {
		orig := configDirOverride
		configDirOverride = "/tmp/test-config"
		t.Cleanup(func() { configDirOverride = orig })

		got := ConfigDir()
		if got != "/tmp/test-config" {
			t.Errorf("expected override dir, got %q", got)
		}
	})

	t.Run("returns home-based path when no override", func(t *testing.T) {
		orig := configDirOverride
		configDirOverride = ""
		t.Cleanup(func() { configDirOverride = orig })

		got := ConfigDir()
		if got == "" {
			t.Fatal("expected non-empty config dir")
		}
		if !strings.HasSuffix(got, filepath.Join(".config", "surfbridge")) {
			t.Errorf("expected path ending in .config/surfbridge, got %q", got)
		}
	})
}

func TestDataDir(t *testing.T) {
	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if dir == "" {
		t.Fatal("expected non-empty data dir")
	}
	if !strings.HasSuffix(dir, filepath.Join(".local", "share", "surfbridge")) {
		t.Errorf("expected path ending in .local/share/surfbridge, got %q", dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat data dir: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected data dir to be a directory")
	}
}

func TestConfigGroupNames(t *testing.T) {
	names := ConfigGroupNames()
	want := []string{"daemon", "capture", "tools", "workflow"}
	if len(names) != len(want) {
		t.Fatalf("expected %d group names, got %d", len(want), len(names))
	}
	for i, n := range names {
		if n != want[i] {
			t.Errorf("group name [%d] = %q, want %q", i, n, want[i])
		}
	}
}

func TestConfigFilePath(t *testing.T) {
	orig := configDirOverride
	configDirOverride = "/tmp/test-surfbridge"
	t.Cleanup(func() { configDirOverride = orig })

	got := ConfigFilePath()
	want := filepath.Join("/tmp/test-surfbridge", "config.json")
	if got != want {
		t.Errorf("ConfigFilePath() = %q, want %q", got, want)
	}
}

func TestParseBoolish(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"True", true, false},
		{"TRUE", true, false},
		{"on", true, false},
		{"yes", true, false},
		{"1", true, false},
		{"false", false, false},
		{"False", false, false},
		{"off", false, false},
		{"no", false, false},
		{"0", false, false},
		{"maybe", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBoolish(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseBoolish(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences()
	if p.SocketPath == "" {
		t.Error("expected a default socket path")
	}
	if p.SocketMode != "0600" {
		t.Errorf("SocketMode = %q, want 0600", p.SocketMode)
	}
	if p.CaptureTTLHours != 24 {
		t.Errorf("CaptureTTLHours = %d, want 24", p.CaptureTTLHours)
	}
	if p.WorkflowMaxLoopIterations != 100 {
		t.Errorf("WorkflowMaxLoopIterations = %d, want 100", p.WorkflowMaxLoopIterations)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	p := DefaultPreferences()
	if err := p.Set("capture.ttl_hours", "48"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := p.Get("capture.ttl_hours"); got != "48" {
		t.Errorf("Get = %q, want %q", got, "48")
	}
}

func TestSetUnknownKey(t *testing.T) {
	p := DefaultPreferences()
	if err := p.Set("nonsense.key", "x"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSetInvalidSocketMode(t *testing.T) {
	p := DefaultPreferences()
	if err := p.Set("daemon.socket_mode", "not-octal"); err == nil {
		t.Fatal("expected error for invalid octal mode")
	}
}

func TestSetInvalidIntValues(t *testing.T) {
	tests := []string{
		"capture.ttl_hours",
		"capture.max_bytes",
		"tools.default_timeout_seconds",
		"workflow.max_loop_iterations",
	}
	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			p := DefaultPreferences()
			if err := p.Set(key, "not-a-number"); err == nil {
				t.Errorf("expected error setting %s to a non-number", key)
			}
		})
	}
}

func TestSetInvalidBoolValue(t *testing.T) {
	p := DefaultPreferences()
	if err := p.Set("capture.auto_clean", "maybe"); err == nil {
		t.Fatal("expected error for invalid bool value")
	}
}

func TestPerToolTimeoutOverride(t *testing.T) {
	p := DefaultPreferences()
	if err := p.Set("tools.timeout.screenshot", "60"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := p.Get("tools.timeout.screenshot"); got != "60" {
		t.Errorf("Get = %q, want %q", got, "60")
	}
	if got := p.Get("tools.timeout.unset_tool"); got != "" {
		t.Errorf("Get for unset override = %q, want empty", got)
	}
}

func TestPerToolTimeoutOverrideInvalid(t *testing.T) {
	p := DefaultPreferences()
	if err := p.Set("tools.timeout.screenshot", "soon"); err == nil {
		t.Fatal("expected error for non-numeric timeout override")
	}
}

func TestMaskKey(t *testing.T) {
	if got := MaskKey(""); got != "" {
		t.Errorf("MaskKey empty = %q, want empty", got)
	}
	if got := MaskKey("abcdefgh"); got != "****efgh" {
		t.Errorf("MaskKey = %q, want %q", got, "****efgh")
	}
	if got := MaskKey("ab"); got != "****" {
		t.Errorf("MaskKey short = %q, want %q", got, "****")
	}
}

func TestSanitizeValueStripsControlChars(t *testing.T) {
	got := SanitizeValue("  ab\x00c\x07d\n  ")
	if got != "abcd" {
		t.Errorf("SanitizeValue = %q, want %q", got, "abcd")
	}
}

func TestGroupedIncludesAllKeys(t *testing.T) {
	p := DefaultPreferences()
	groups := p.Grouped()
	count := 0
	for _, g := range groups {
		count += len(g.Entries)
	}
	if count == 0 {
		t.Fatal("expected at least one grouped entry")
	}
}

func TestGroupByNameUnknown(t *testing.T) {
	p := DefaultPreferences()
	if g := p.GroupByName("nope"); g != nil {
		t.Errorf("expected nil for unknown group, got %+v", g)
	}
}

func TestLoadPreferences(t *testing.T) {
	t.Run("returns defaults when no config dir", func(t *testing.T) {
		orig := configDirOverride
		configDirOverride = filepath.Join(t.TempDir(), "nonexistent")
		t.Cleanup(func() { configDirOverride = orig })

		p := LoadPreferences()
		if p.CaptureTTLHours != 24 {
			t.Error("expected default CaptureTTLHours=24")
		}
	})

	t.Run("loads from config.json", func(t *testing.T) {
		dir := t.TempDir()
		orig := configDirOverride
		configDirOverride = dir
		t.Cleanup(func() { configDirOverride = orig })

		data, _ := json.Marshal(Preferences{
			SocketPath:      "/tmp/custom.sock",
			CaptureTTLHours: 12,
		})
		os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600)

		p := LoadPreferences()
		if p.SocketPath != "/tmp/custom.sock" {
			t.Errorf("expected custom socket path, got %q", p.SocketPath)
		}
		if p.CaptureTTLHours != 12 {
			t.Errorf("expected ttl 12, got %d", p.CaptureTTLHours)
		}
	})

	t.Run("handles invalid config.json gracefully", func(t *testing.T) {
		dir := t.TempDir()
		orig := configDirOverride
		configDirOverride = dir
		t.Cleanup(func() { configDirOverride = orig })

		os.WriteFile(filepath.Join(dir, "config.json"), []byte("{invalid}"), 0o600)

		p := LoadPreferences()
		if p.CaptureTTLHours != 24 {
			t.Error("expected default CaptureTTLHours=24 after bad JSON")
		}
	})

	t.Run("sanitizes loaded preferences", func(t *testing.T) {
		dir := t.TempDir()
		orig := configDirOverride
		configDirOverride = dir
		t.Cleanup(func() { configDirOverride = orig })

		data, _ := json.Marshal(Preferences{DaemonAuthToken: "\x00tok-dirty"})
		os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600)

		p := LoadPreferences()
		if strings.Contains(p.DaemonAuthToken, "\x00") {
			t.Error("expected null bytes to be sanitized")
		}
	})
}

func TestSavePreferences(t *testing.T) {
	t.Run("writes and reads back correctly", func(t *testing.T) {
		dir := t.TempDir()
		orig := configDirOverride
		configDirOverride = dir
		t.Cleanup(func() { configDirOverride = orig })

		p := DefaultPreferences()
		p.SocketPath = "/tmp/another.sock"
		p.DaemonAuthToken = "tok-test"

		if err := SavePreferences(p); err != nil {
			t.Fatalf("SavePreferences: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(dir, "config.json"))
		if err != nil {
			t.Fatalf("read config: %v", err)
		}
		var loaded Preferences
		if err := json.Unmarshal(data, &loaded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if loaded.SocketPath != "/tmp/another.sock" {
			t.Errorf("expected socket path, got %q", loaded.SocketPath)
		}
		if loaded.DaemonAuthToken != "tok-test" {
			t.Errorf("expected auth token, got %q", loaded.DaemonAuthToken)
		}
	})
}

func TestWarnInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission check not applicable on Windows")
	}

	t.Run("does not warn for 0600", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "secure.json")
		os.WriteFile(f, []byte("{}"), 0o600)
		warnInsecurePermissions(f)
	})

	t.Run("handles nonexistent file", func(t *testing.T) {
		warnInsecurePermissions("/nonexistent/file.json")
	})
}

func TestExecuteConfigAction(t *testing.T) {
	t.Run("show returns all groups", func(t *testing.T) {
		p := DefaultPreferences()
		result, err := ExecuteConfigAction(&p, []string{"show"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "Daemon:") {
			t.Error("expected 'Daemon:' in output")
		}
		if !strings.Contains(result, "Capture:") {
			t.Error("expected 'Capture:' in output")
		}
	})

	t.Run("default is show", func(t *testing.T) {
		p := DefaultPreferences()
		result, err := ExecuteConfigAction(&p, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "Daemon:") {
			t.Error("expected show output for empty args")
		}
	})

	t.Run("capture group", func(t *testing.T) {
		p := DefaultPreferences()
		result, err := ExecuteConfigAction(&p, []string{"capture"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "Capture:") {
			t.Error("expected 'Capture:' in output")
		}
		if strings.Contains(result, "Daemon:") {
			t.Error("should only show capture group")
		}
	})

	t.Run("set updates and saves", func(t *testing.T) {
		dir := t.TempDir()
		orig := configDirOverride
		configDirOverride = dir
		t.Cleanup(func() { configDirOverride = orig })

		p := DefaultPreferences()
		result, err := ExecuteConfigAction(&p, []string{"set", "capture.ttl_hours", "6"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "Set capture.ttl_hours") {
			t.Errorf("expected confirmation, got %q", result)
		}
		if p.CaptureTTLHours != 6 {
			t.Errorf("expected ttl to be updated, got %d", p.CaptureTTLHours)
		}
	})

	t.Run("set with insufficient args returns error", func(t *testing.T) {
		p := DefaultPreferences()
		_, err := ExecuteConfigAction(&p, []string{"set", "capture.ttl_hours"})
		if err == nil {
			t.Fatal("expected error for insufficient args")
		}
	})

	t.Run("set invalid key returns error", func(t *testing.T) {
		p := DefaultPreferences()
		_, err := ExecuteConfigAction(&p, []string{"set", "bad.key", "value"})
		if err == nil {
			t.Fatal("expected error for invalid key")
		}
	})

	t.Run("reset restores defaults", func(t *testing.T) {
		dir := t.TempDir()
		orig := configDirOverride
		configDirOverride = dir
		t.Cleanup(func() { configDirOverride = orig })

		p := DefaultPreferences()
		p.CaptureTTLHours = 1

		result, err := ExecuteConfigAction(&p, []string{"reset"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result, "reset") {
			t.Errorf("expected reset confirmation, got %q", result)
		}
		if p.CaptureTTLHours != 24 {
			t.Errorf("expected ttl to be reset, got %d", p.CaptureTTLHours)
		}
	})

	t.Run("unknown subcommand returns error", func(t *testing.T) {
		p := DefaultPreferences()
		_, err := ExecuteConfigAction(&p, []string{"badcmd"})
		if err == nil {
			t.Fatal("expected error for unknown subcommand")
		}
		if !strings.Contains(err.Error(), "usage:") {
			t.Errorf("expected usage in error, got %q", err.Error())
		}
	})
}

func TestFormatConfigGroups(t *testing.T) {
	groups := []ConfigGroup{
		{
			Name: "test",
			Entries: []PrefEntry{
				{Key: "foo", Value: "bar"},
				{Key: "baz", Value: "(not set)"},
			},
		},
	}

	result := FormatConfigGroups(groups)
	if !strings.Contains(result, "Test:") {
		t.Error("expected capitalized group name")
	}
	if !strings.Contains(result, "foo") {
		t.Error("expected key 'foo' in output")
	}
	if !strings.Contains(result, "bar") {
		t.Error("expected value 'bar' in output")
	}
	if !strings.Contains(result, "config set") {
		t.Error("expected usage hint in output")
	}
}

func TestFormatConfigGroups_multipleGroups(t *testing.T) {
	groups := []ConfigGroup{
		{Name: "alpha", Entries: []PrefEntry{{Key: "a", Value: "1"}}},
		{Name: "beta", Entries: []PrefEntry{{Key: "b", Value: "2"}}},
	}

	result := FormatConfigGroups(groups)
	if !strings.Contains(result, "Alpha:") {
		t.Error("expected 'Alpha:'")
	}
	if !strings.Contains(result, "Beta:") {
		t.Error("expected 'Beta:'")
	}
}
