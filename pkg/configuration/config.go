package configuration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config verwaltet die Anwendungskonfiguration
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	globalMu     sync.RWMutex
	once         sync.Once
)

// sectionOrder is the order sections are written in
var sectionOrder = []string{"Calculator", "Quiz", "Storage", "Network", "JWT", "TLS", "Debug"}

// Initialize loads the global configuration from configPath, creating the
// file with defaults when it does not exist. A settings.local.cfg next to
// the working directory overrides individual keys.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		var cfg *Config
		cfg, err = Load(configPath)
		if err != nil {
			return
		}
		localConfigPath := "settings.local.cfg"
		if _, statErr := os.Stat(localConfigPath); statErr == nil {
			// Lokale Overrides sind optional
			_ = cfg.loadFile(localConfigPath)
		}
		Use(cfg)
	})
	return err
}

// New returns a configuration holding only the defaults, not bound to a file.
func New() *Config {
	c := &Config{settings: make(map[string]map[string]string)}
	c.createDefaultConfig()
	return c
}

// Use installs c as the global configuration. Passing nil clears it.
func Use(c *Config) {
	globalMu.Lock()
	globalConfig = c
	globalMu.Unlock()
}

func current() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// Load reads the configuration at filePath; a missing file is created
// with the defaults.
func Load(filePath string) (*Config, error) {
	config := New()
	config.filePath = filePath

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := config.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %v", err)
		}
		return config, nil
	}

	if err := config.loadFile(filePath); err != nil {
		return nil, err
	}
	return config, nil
}

// loadFile merges the file's keys over the current settings
func (c *Config) loadFile(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()
	return c.Parse(file)
}

// Parse merges INI-style content into the configuration. Lines starting
// with ';' or '#' are comments; keys outside a section are ignored.
func (c *Config) Parse(r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	scanner := bufio.NewScanner(r)
	currentSection := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Überspringe leere Zeilen und Kommentare
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = line[1 : len(line)-1]
			if c.settings[currentSection] == nil {
				c.settings[currentSection] = make(map[string]string)
			}
			continue
		}

		if strings.Contains(line, "=") && currentSection != "" {
			parts := strings.SplitN(line, "=", 2)
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			c.settings[currentSection][key] = value
		}
	}
	return scanner.Err()
}

// createDefaultConfig fills in every key the application reads
func (c *Config) createDefaultConfig() {
	c.settings["Calculator"] = map[string]string{
		"decimal_separators":    ".,",
		"division_mode":         "ieee",
		"max_expression_length": "256",
	}

	c.settings["Quiz"] = map[string]string{
		"time_limit":          "60s",
		"high_score_limit":    "5",
		"max_nickname_length": "20",
	}

	c.settings["Storage"] = map[string]string{
		"database_path":   "retrocalc.db",
		"persist_history": "true",
	}

	c.settings["Network"] = map[string]string{
		"http_port":                  "8080",
		"pong_timeout":               "90s",
		"write_wait_timeout":         "10s",
		"max_message_size_kb":        "16",
		"max_channel_buffer":         "256",
		"max_clients":                "100",
		"max_connections_per_minute": "30",
		"allowed_origins":            "",
	}

	c.settings["JWT"] = map[string]string{
		"secret_key":             "ENVIRONMENT_VARIABLE_NOT_SET_FALLBACK",
		"token_expiration_hours": "24",
	}

	c.settings["TLS"] = map[string]string{
		"enable_tls":           "false",
		"enable_letsencrypt":   "false",
		"domain":               "",
		"letsencrypt_email":    "",
		"cert_cache_dir":       "./certs",
		"force_https_redirect": "false",
		"cert_file":            "./certs/server.crt",
		"key_file":             "./certs/server.key",
		"https_port":           "8443",
	}

	c.settings["Debug"] = map[string]string{
		"enable_debug_logging": "true",
		"log_level":            "INFO",
		"log_file":             "debug.log",
		"max_log_size_mb":      "10",
		"log_rotation_count":   "3",
		// Selektive Logging-Bereiche
		"log_calculator": "false",
		"log_history":    "false",
		"log_quiz":       "true",
		"log_server":     "true",
		"log_auth":       "true",
		"log_database":   "false",
		"log_security":   "true",
		"log_config":     "true",
		"log_general":    "true",
	}
}

// saveToFile writes all sections, keys sorted, to the bound file
func (c *Config) saveToFile() error {
	if c.filePath == "" {
		return fmt.Errorf("configuration has no file path")
	}
	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	w.WriteString("; retrocalc configuration file\n")
	w.WriteString("; Generated automatically - modify with care\n")
	w.WriteString(";\n\n")

	for _, section := range c.sections() {
		settings := c.settings[section]
		fmt.Fprintf(w, "[%s]\n", section)

		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "%s = %s\n", key, settings[key])
		}
		w.WriteString("\n")
	}
	return w.Flush()
}

// sections returns known sections first, then any extra ones alphabetically
func (c *Config) sections() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(c.settings))
	for _, s := range sectionOrder {
		if _, ok := c.settings[s]; ok {
			out = append(out, s)
			seen[s] = true
		}
	}
	var extra []string
	for s := range c.settings {
		if !seen[s] {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Get returns the raw value and whether it was set
func (c *Config) Get(section, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sectionMap, exists := c.settings[section]; exists {
		value, exists := sectionMap[key]
		return value, exists
	}
	return "", false
}

// Set stores a value, creating the section if needed
func (c *Config) Set(section, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.settings[section] == nil {
		c.settings[section] = make(map[string]string)
	}
	c.settings[section][key] = value
}

// GetString gibt einen String-Wert aus der Konfiguration zurück
func GetString(section, key, defaultValue string) string {
	cfg := current()
	if cfg == nil {
		return defaultValue
	}
	if value, ok := cfg.Get(section, key); ok {
		return value
	}
	return defaultValue
}

// GetInt gibt einen Integer-Wert aus der Konfiguration zurück
func GetInt(section, key string, defaultValue int) int {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(str); err == nil {
		return value
	}
	return defaultValue
}

// GetFloat gibt einen Float-Wert aus der Konfiguration zurück
func GetFloat(section, key string, defaultValue float64) float64 {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseFloat(str, 64); err == nil {
		return value
	}
	return defaultValue
}

// GetBool gibt einen Boolean-Wert aus der Konfiguration zurück
func GetBool(section, key string, defaultValue bool) bool {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(str); err == nil {
		return value
	}
	return defaultValue
}

// GetDuration gibt einen Duration-Wert aus der Konfiguration zurück
func GetDuration(section, key string, defaultValue time.Duration) time.Duration {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(str); err == nil {
		return value
	}
	return defaultValue
}

// GetSection returns a copy of all key-value pairs in a section
func GetSection(sectionName string) map[string]string {
	result := make(map[string]string)
	cfg := current()
	if cfg == nil {
		return result
	}

	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	for key, value := range cfg.settings[sectionName] {
		result[key] = value
	}
	return result
}

// SetString setzt einen String-Wert in der Konfiguration
func SetString(section, key, value string) {
	if cfg := current(); cfg != nil {
		cfg.Set(section, key, value)
	}
}

// Save speichert die aktuelle Konfiguration in die Datei
func Save() error {
	cfg := current()
	if cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}

	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	return cfg.saveToFile()
}
