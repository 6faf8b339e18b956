package agent

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultHistoryLimit is how many stored messages seed a turn.
const DefaultHistoryLimit = 20

//go:embed profile.yaml
var defaultProfileYAML []byte

var ErrInvalidProfile = errors.New("agent: invalid profile")

// Profile is the assistant's prompt and loop tuning, kept in YAML so it can
// change without a rebuild.
type Profile struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	// Temperature overrides llm.temperature when set.
	Temperature   *float64 `yaml:"temperature"`
	MaxTokens     int      `yaml:"max_tokens"`
	MaxToolRounds int      `yaml:"max_tool_rounds"`
	HistoryLimit  int      `yaml:"history_limit"`
	ParallelTools bool     `yaml:"parallel_tools"`
}

// DefaultProfile returns the embedded profile.
func DefaultProfile() Profile {
	p, err := decodeProfile(defaultProfileYAML, Profile{})
	if err != nil {
		panic(fmt.Sprintf("embedded agent profile: %v", err))
	}
	return p
}

// ParseProfile decodes data over the embedded defaults, so a profile only
// lists what it changes. Unknown keys are rejected.
func ParseProfile(data []byte) (Profile, error) {
	return decodeProfile(data, DefaultProfile())
}

func decodeProfile(data []byte, base Profile) (Profile, error) {
	p := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if err := p.validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// LoadProfile reads a profile file. An empty path yields the default.
func LoadProfile(path string) (Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile %s: %w", path, err)
	}
	return ParseProfile(data)
}

func (p Profile) validate() error {
	switch {
	case strings.TrimSpace(p.SystemPrompt) == "":
		return fmt.Errorf("%w: system_prompt is required", ErrInvalidProfile)
	case p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2):
		return fmt.Errorf("%w: temperature must be within [0, 2]", ErrInvalidProfile)
	case p.MaxTokens < 0:
		return fmt.Errorf("%w: max_tokens must not be negative", ErrInvalidProfile)
	case p.MaxToolRounds < 0:
		return fmt.Errorf("%w: max_tool_rounds must not be negative", ErrInvalidProfile)
	case p.HistoryLimit < 0:
		return fmt.Errorf("%w: history_limit must not be negative", ErrInvalidProfile)
	}
	return nil
}

// Config returns the loop settings of the profile.
func (p Profile) Config() Config {
	return Config{
		MaxToolRounds: p.MaxToolRounds,
		ParallelTools: p.ParallelTools,
		Temperature:   p.Temperature,
		MaxTokens:     p.MaxTokens,
	}
}

// Limit returns the history limit, falling back to DefaultHistoryLimit.
func (p Profile) Limit() int {
	if p.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return p.HistoryLimit
}
