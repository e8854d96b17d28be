package strategyconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads YAML file and returns Config with raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return cfg, data, nil
}

// Parse decodes and validates routing YAML. Broker names are upper-cased.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalize(cfg *Config) {
	cfg.Fallback = strings.ToUpper(strings.TrimSpace(cfg.Fallback))
	for i := range cfg.Strategies {
		cfg.Strategies[i].Broker = strings.ToUpper(strings.TrimSpace(cfg.Strategies[i].Broker))
	}
	for i := range cfg.Users {
		for j, b := range cfg.Users[i].Priority {
			cfg.Users[i].Priority[j] = strings.ToUpper(strings.TrimSpace(b))
		}
	}
	for i := range cfg.Capabilities {
		cfg.Capabilities[i].Broker = strings.ToUpper(strings.TrimSpace(cfg.Capabilities[i].Broker))
	}
}

// Hash generates SHA256 hash from Config (canonical JSON)
// 주의: map 대신 struct 사용으로 해시 재현성 보장
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// Snapshot records which routing file was active, for the startup log
type Snapshot struct {
	ConfigHash string    `json:"config_hash"`
	Version    string    `json:"version"`
	Source     string    `json:"source"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// NewSnapshot creates a snapshot of cfg loaded from source
func NewSnapshot(cfg *Config, source string) (*Snapshot, error) {
	hash, err := Hash(cfg)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		ConfigHash: hash,
		Version:    cfg.Meta.Version,
		Source:     source,
		LoadedAt:   time.Now(),
	}, nil
}
