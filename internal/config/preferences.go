package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Preferences holds user-configurable daemon, capture, and tool settings.
// Persisted to ~/.config/surfbridge/config.json.
type Preferences struct {
	SocketPath string `json:"socket_path,omitempty"`
	SocketMode string `json:"socket_mode,omitempty"` // octal string, e.g. "0600"

	CaptureDir       string `json:"capture_dir,omitempty"`
	CaptureTTLHours  int    `json:"capture_ttl_hours,omitempty"`
	CaptureMaxBytes  int64  `json:"capture_max_bytes,omitempty"`
	CaptureAutoClean bool   `json:"capture_auto_clean"`

	DefaultToolTimeoutSeconds int            `json:"default_tool_timeout_seconds,omitempty"`
	ToolTimeoutOverrides      map[string]int `json:"tool_timeout_overrides,omitempty"`

	WorkflowMaxLoopIterations int `json:"workflow_max_loop_iterations,omitempty"`

	DaemonAuthToken string `json:"daemon_auth_token,omitempty"`
}

// PrefEntry holds a single key-value preference entry for display.
type PrefEntry struct {
	Key   string
	Value string
}

// ConfigGroup holds a named group of preference entries for display.
type ConfigGroup struct {
	Name    string
	Entries []PrefEntry
}

// ConfigGroupDef defines a single group with a name and its keys.
type ConfigGroupDef struct {
	Name string
	Keys []string
}

// ConfigGroupDefs defines the preference key groupings and their display order.
var ConfigGroupDefs = []ConfigGroupDef{
	{
		Name: "daemon",
		Keys: []string{"daemon.socket_path", "daemon.socket_mode", "daemon.auth_token"},
	},
	{
		Name: "capture",
		Keys: []string{"capture.dir", "capture.ttl_hours", "capture.max_bytes", "capture.auto_clean"},
	},
	{
		Name: "tools",
		Keys: []string{"tools.default_timeout_seconds"},
	},
	{
		Name: "workflow",
		Keys: []string{"workflow.max_loop_iterations"},
	},
}

// ConfigGroupNames returns the list of valid group names.
func ConfigGroupNames() []string {
	names := make([]string, len(ConfigGroupDefs))
	for i, g := range ConfigGroupDefs {
		names[i] = g.Name
	}
	return names
}

// DefaultPreferences returns the default set of preferences.
func DefaultPreferences() Preferences {
	return Preferences{
		SocketPath:                DefaultSocketPath(),
		SocketMode:                "0600",
		CaptureDir:                DefaultCapturePath(),
		CaptureTTLHours:           24,
		CaptureMaxBytes:           200 << 20, // 200 MB
		CaptureAutoClean:         true,
		DefaultToolTimeoutSeconds: 30,
		ToolTimeoutOverrides:      map[string]int{},
		WorkflowMaxLoopIterations: 100,
	}
}

// LoadPreferences reads preferences from ~/.config/surfbridge/config.json.
func LoadPreferences() Preferences {
	dir := ConfigDir()
	if dir == "" {
		return DefaultPreferences()
	}

	configPath := filepath.Join(dir, "config.json")
	p := DefaultPreferences()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return p
	}
	data = stripBOM(data)
	if err := json.Unmarshal(data, &p); err != nil {
		fmt.Fprintf(os.Stderr, "config: parse %s: %v\n", configPath, err)
		return DefaultPreferences()
	}
	warnInsecurePermissions(configPath)

	if p.ToolTimeoutOverrides == nil {
		p.ToolTimeoutOverrides = map[string]int{}
	}
	if sanitizePreferences(&p) {
		if err := SavePreferences(p); err != nil {
			fmt.Fprintf(os.Stderr, "config: save sanitized config: %v\n", err)
		}
	}
	return p
}

// SavePreferences writes preferences to ~/.config/surfbridge/config.json.
func SavePreferences(p Preferences) error {
	dir := ConfigDir()
	if dir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600)
}

// stripBOM removes a UTF-8 BOM prefix if present. Windows editors like
// Notepad may add a BOM which breaks JSON parsing.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// warnInsecurePermissions prints a warning to stderr if the config file is
// readable by group or others. On Windows, file permission bits don't map
// to ACLs, so the check is skipped.
func warnInsecurePermissions(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: %s is readable by others (mode %o). Run: chmod 600 %s\n",
			path, info.Mode().Perm(), path)
	}
}

// Grouped returns all preferences organized into named groups.
func (p Preferences) Grouped() []ConfigGroup {
	all := p.entryMap()

	var groups []ConfigGroup
	for _, def := range ConfigGroupDefs {
		var entries []PrefEntry
		for _, key := range def.Keys {
			entries = append(entries, PrefEntry{Key: key, Value: AnnotateValue(all[key])})
		}
		groups = append(groups, ConfigGroup{Name: def.Name, Entries: entries})
	}
	return groups
}

// GroupByName returns entries for a single config group, or nil if not found.
func (p Preferences) GroupByName(name string) *ConfigGroup {
	for _, g := range p.Grouped() {
		if g.Name == name {
			return &g
		}
	}
	return nil
}

// entryMap returns all preference entries as a key->value map.
func (p Preferences) entryMap() map[string]string {
	m := make(map[string]string)
	for _, e := range p.All() {
		m[e.Key] = e.Value
	}
	return m
}

// All returns all static preference entries as a flat list. Per-tool timeout
// overrides are dotted dynamically (tools.timeout.<name>) and are not listed
// here since their key set is open-ended; use Get("tools.timeout.<name>").
func (p Preferences) All() []PrefEntry {
	return []PrefEntry{
		{"daemon.socket_path", p.SocketPath},
		{"daemon.socket_mode", p.SocketMode},
		{"daemon.auth_token", MaskKey(p.DaemonAuthToken)},
		{"capture.dir", p.CaptureDir},
		{"capture.ttl_hours", strconv.Itoa(p.CaptureTTLHours)},
		{"capture.max_bytes", strconv.FormatInt(p.CaptureMaxBytes, 10)},
		{"capture.auto_clean", strconv.FormatBool(p.CaptureAutoClean)},
		{"tools.default_timeout_seconds", strconv.Itoa(p.DefaultToolTimeoutSeconds)},
		{"workflow.max_loop_iterations", strconv.Itoa(p.WorkflowMaxLoopIterations)},
	}
}

// Get returns the display value for a single preference key, including the
// dynamic tools.timeout.<name> form for per-tool timeout overrides.
func (p Preferences) Get(key string) string {
	if name, ok := strings.CutPrefix(key, "tools.timeout."); ok {
		if v, ok := p.ToolTimeoutOverrides[name]; ok {
			return strconv.Itoa(v)
		}
		return ""
	}
	switch key {
	case "daemon.socket_path":
		return p.SocketPath
	case "daemon.socket_mode":
		return p.SocketMode
	case "daemon.auth_token":
		return MaskKey(p.DaemonAuthToken)
	case "capture.dir":
		return p.CaptureDir
	case "capture.ttl_hours":
		return strconv.Itoa(p.CaptureTTLHours)
	case "capture.max_bytes":
		return strconv.FormatInt(p.CaptureMaxBytes, 10)
	case "capture.auto_clean":
		return strconv.FormatBool(p.CaptureAutoClean)
	case "tools.default_timeout_seconds":
		return strconv.Itoa(p.DefaultToolTimeoutSeconds)
	case "workflow.max_loop_iterations":
		return strconv.Itoa(p.WorkflowMaxLoopIterations)
	default:
		return ""
	}
}

// Set updates a single preference key to the given value.
func (p *Preferences) Set(key, value string) error {
	value = SanitizeValue(value)
	if name, ok := strings.CutPrefix(key, "tools.timeout."); ok {
		secs, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid timeout seconds %q: %w", value, err)
		}
		if p.ToolTimeoutOverrides == nil {
			p.ToolTimeoutOverrides = map[string]int{}
		}
		p.ToolTimeoutOverrides[name] = secs
		return nil
	}
	switch key {
	case "daemon.socket_path":
		p.SocketPath = value
	case "daemon.socket_mode":
		if _, err := strconv.ParseUint(value, 8, 32); err != nil {
			return fmt.Errorf("invalid octal mode %q: %w", value, err)
		}
		p.SocketMode = value
	case "daemon.auth_token":
		p.DaemonAuthToken = value
	case "capture.dir":
		p.CaptureDir = value
	case "capture.ttl_hours":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ttl hours %q: %w", value, err)
		}
		p.CaptureTTLHours = n
	case "capture.max_bytes":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid max bytes %q: %w", value, err)
		}
		p.CaptureMaxBytes = n
	case "capture.auto_clean":
		b, err := ParseBoolish(value)
		if err != nil {
			return err
		}
		p.CaptureAutoClean = b
	case "tools.default_timeout_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid timeout seconds %q: %w", value, err)
		}
		p.DefaultToolTimeoutSeconds = n
	case "workflow.max_loop_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid loop iteration cap %q: %w", value, err)
		}
		p.WorkflowMaxLoopIterations = n
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// SanitizeValue strips null bytes, ASCII control characters (< 32 except
// \n and \t), and DEL (0x7F) from a string value and trims surrounding
// whitespace.
func SanitizeValue(s string) string {
	return strings.Map(func(r rune) rune {
		if (r < 32 && r != '\n' && r != '\t') || r == 0x7F {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// sanitizePreferences strips control characters from string fields in an
// already-loaded Preferences struct. Returns true if any field was modified.
func sanitizePreferences(p *Preferences) bool {
	changed := false
	sanitize := func(s *string) {
		cleaned := SanitizeValue(*s)
		if cleaned != *s {
			*s = cleaned
			changed = true
		}
	}
	sanitize(&p.SocketPath)
	sanitize(&p.SocketMode)
	sanitize(&p.CaptureDir)
	sanitize(&p.DaemonAuthToken)
	return changed
}

// MaskKey masks a secret value for display, showing only the last 4 characters.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// ParseBoolish parses a boolean-like string value.
func ParseBoolish(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s (use true/false, on/off, yes/no)", s)
	}
}

// AnnotateValue returns a display string for a config value, showing
// "(not set)" for empty values.
func AnnotateValue(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}

// ConfigFilePath returns the absolute path to config.json.
func ConfigFilePath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.json")
}

// ---------------------------------------------------------------------------
// Config actions — adapter-agnostic business logic, used by a debug CLI
// ---------------------------------------------------------------------------

// ExecuteConfigAction handles config subcommands and returns a plain-text
// response.
func ExecuteConfigAction(prefs *Preferences, args []string) (string, error) {
	sub := "show"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}

	switch sub {
	case "show":
		return FormatConfigGroups(prefs.Grouped()), nil

	case "daemon", "capture", "tools", "workflow":
		group := prefs.GroupByName(sub)
		if group == nil {
			return "", fmt.Errorf("unknown config group: %s", sub)
		}
		return FormatConfigGroups([]ConfigGroup{*group}), nil

	case "set":
		if len(args) < 3 {
			return "", fmt.Errorf("usage: config set <key> <value>")
		}
		key := args[1]
		value := args[2]
		if err := prefs.Set(key, value); err != nil {
			return "", err
		}
		if err := SavePreferences(*prefs); err != nil {
			return "", fmt.Errorf("failed to save: %w", err)
		}
		return fmt.Sprintf("Set %s = %s", key, prefs.Get(key)), nil

	case "reset":
		*prefs = DefaultPreferences()
		if err := SavePreferences(*prefs); err != nil {
			return "", fmt.Errorf("failed to save: %w", err)
		}
		return "Preferences reset to defaults.", nil

	default:
		return "", fmt.Errorf("usage: config [show|daemon|capture|tools|workflow|set <key> <value>|reset]")
	}
}

// FormatConfigGroups renders config groups as plain text (no ANSI styling).
func FormatConfigGroups(groups []ConfigGroup) string {
	var lines []string
	for i, g := range groups {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, strings.ToUpper(g.Name[:1])+g.Name[1:]+":")
		for _, e := range g.Entries {
			lines = append(lines, fmt.Sprintf("  %-28s %s", e.Key, e.Value))
		}
	}
	lines = append(lines, "")
	lines = append(lines, "  Use config set <key> <value> to change")
	return strings.Join(lines, "\n")
}
