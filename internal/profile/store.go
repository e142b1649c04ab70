package profile

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// maxSessions bounds the persisted session history.
const maxSessions = 50

// LastConnection records the most recent successful connection so the
// next startup can try it first.
type LastConnection struct {
	Port     string    `yaml:"port"`
	Protocol string    `yaml:"protocol"`
	BaudRate int       `yaml:"baud_rate"`
	At       time.Time `yaml:"at"`
}

// SessionRecord summarizes one connect/disconnect lifecycle.
type SessionRecord struct {
	Started  time.Time `yaml:"started"`
	Ended    time.Time `yaml:"ended,omitempty"`
	Port     string    `yaml:"port"`
	Protocol string    `yaml:"protocol"`
	DTCCount int       `yaml:"dtc_count"`
}

type fileData struct {
	DefaultProfile string                      `yaml:"default_profile"`
	Profiles       map[string]ConnectionConfig `yaml:"profiles"`
	LastSuccessful *LastConnection             `yaml:"last_successful,omitempty"`
	Sessions       []SessionRecord             `yaml:"sessions,omitempty"`
}

// Store persists connection profiles and session history to one YAML file.
type Store struct {
	path string
	data fileData
}

// DefaultPath is ~/.obdlink/config.yaml, falling back to the working
// directory when the home directory cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "obdlink.yaml"
	}
	return filepath.Join(home, ".obdlink", "config.yaml")
}

// Open loads the store at path, tolerating a missing file by seeding the
// default "auto" profile.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	s := &Store{path: path, data: defaultData()}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Printf("[profile] no config at %s, using defaults", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.data.Profiles == nil {
		s.data.Profiles = map[string]ConnectionConfig{}
	}
	if _, ok := s.data.Profiles["auto"]; !ok {
		s.data.Profiles["auto"] = DefaultConnectionConfig()
	}
	if s.data.DefaultProfile == "" {
		s.data.DefaultProfile = "auto"
	}
	return s, nil
}

func defaultData() fileData {
	return fileData{
		DefaultProfile: "auto",
		Profiles:       map[string]ConnectionConfig{"auto": DefaultConnectionConfig()},
	}
}

// Save writes the store back to disk. The file lives under the user's
// home directory, so it is written owner-only.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(s.path), err)
	}
	raw, err := yaml.Marshal(&s.data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Profile returns a named profile.
func (s *Store) Profile(name string) (ConnectionConfig, error) {
	cfg, ok := s.data.Profiles[name]
	if !ok {
		return ConnectionConfig{}, fmt.Errorf("profile %q not found", name)
	}
	return cfg, nil
}

// DefaultProfile returns the configured default profile, falling back to
// built-in defaults if the pointer is dangling.
func (s *Store) DefaultProfile() ConnectionConfig {
	if cfg, ok := s.data.Profiles[s.data.DefaultProfile]; ok {
		return cfg
	}
	return DefaultConnectionConfig()
}

// SetDefaultProfile changes which profile Connect uses when none is named.
func (s *Store) SetDefaultProfile(name string) error {
	if _, ok := s.data.Profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	s.data.DefaultProfile = name
	return nil
}

// SaveProfile stores a named profile and persists the file.
func (s *Store) SaveProfile(name string, cfg ConnectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("profile %q: %w", name, err)
	}
	s.data.Profiles[name] = cfg
	return s.Save()
}

// DeleteProfile removes a named profile. The "auto" profile cannot be
// deleted; the default pointer falls back to "auto" when its target goes.
func (s *Store) DeleteProfile(name string) error {
	if name == "auto" {
		return fmt.Errorf("the auto profile cannot be deleted")
	}
	if _, ok := s.data.Profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	delete(s.data.Profiles, name)
	if s.data.DefaultProfile == name {
		s.data.DefaultProfile = "auto"
	}
	return s.Save()
}

// ProfileNames lists stored profiles.
func (s *Store) ProfileNames() []string {
	names := make([]string, 0, len(s.data.Profiles))
	for name := range s.data.Profiles {
		names = append(names, name)
	}
	return names
}

// LastSuccessful returns the most recent successful connection, if any.
func (s *Store) LastSuccessful() *LastConnection {
	return s.data.LastSuccessful
}

// RecordConnection captures a successful connection and persists it.
func (s *Store) RecordConnection(port, protocol string, baudRate int) {
	s.data.LastSuccessful = &LastConnection{
		Port:     port,
		Protocol: protocol,
		BaudRate: baudRate,
		At:       time.Now(),
	}
	if err := s.Save(); err != nil {
		log.Printf("[profile] save last connection: %v", err)
	}
}

// RecordSession appends a session record, trimming history to the most
// recent maxSessions entries, and persists it.
func (s *Store) RecordSession(rec SessionRecord) {
	s.data.Sessions = append(s.data.Sessions, rec)
	if n := len(s.data.Sessions); n > maxSessions {
		s.data.Sessions = s.data.Sessions[n-maxSessions:]
	}
	if err := s.Save(); err != nil {
		log.Printf("[profile] save session history: %v", err)
	}
}

// Sessions returns the persisted session history, oldest first.
func (s *Store) Sessions() []SessionRecord {
	return s.data.Sessions
}
