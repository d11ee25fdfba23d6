// Package world populates a new session with the hosts, screens and files
// the player can reach. The contents come from a YAML seed.
package world

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is the static description of a world.
type Seed struct {
	Gateway   GatewaySeed `yaml:"gateway"`
	Hosts     []HostSeed  `yaml:"hosts"`
	Headlines []string    `yaml:"headlines"`
	Employers []string    `yaml:"employers"`
}

// GatewaySeed describes the player's own machine.
type GatewaySeed struct {
	Address  string         `yaml:"address"`
	Software []SoftwareSeed `yaml:"software"`
}

// SoftwareSeed is a tool installed on the gateway at start.
type SoftwareSeed struct {
	Tool    string `yaml:"tool"`
	Version int    `yaml:"version"`
	Size    int    `yaml:"size"`
}

// HostSeed describes one remote system.
type HostSeed struct {
	Name           string         `yaml:"name"`
	Address        string         `yaml:"address"`
	Kind           string         `yaml:"kind"`
	TraceSpeed     float64        `yaml:"trace_speed"`
	HackDifficulty float64        `yaml:"hack_difficulty"`
	Screens        []ScreenSeed   `yaml:"screens"`
	Security       []SecuritySeed `yaml:"security"`
	Files          []FileSeed     `yaml:"files"`
}

// ScreenSeed describes one screen of a host.
type ScreenSeed struct {
	Type     int    `yaml:"type"`
	SubPage  int    `yaml:"sub_page"`
	NextPage *int   `yaml:"next_page,omitempty"`
	Title    string `yaml:"title"`
	Data1    string `yaml:"data1,omitempty"`
	Data2    string `yaml:"data2,omitempty"`
	Data3    string `yaml:"data3,omitempty"`
}

// SecuritySeed describes a security system on a host.
type SecuritySeed struct {
	Kind  string `yaml:"kind"`
	Level int    `yaml:"level"`
}

// FileSeed describes a file stored on a host.
type FileSeed struct {
	Name      string `yaml:"name"`
	Size      int    `yaml:"size"`
	Encrypted int    `yaml:"encrypted,omitempty"`
	Owner     string `yaml:"owner,omitempty"`
}

var hostKinds = map[string]domain.HostKind{
	"public":     domain.HostKindPublic,
	"corporate":  domain.HostKindCorporate,
	"bank":       domain.HostKindBank,
	"government": domain.HostKindGovernment,
}

var securityKinds = map[string]domain.SecurityKind{
	"proxy":    domain.SecurityProxy,
	"firewall": domain.SecurityFirewall,
	"monitor":  domain.SecurityMonitor,
}

var screenTypes = map[domain.ScreenType]bool{
	domain.ScreenMessage: true, domain.ScreenPassword: true, domain.ScreenMenu: true,
	domain.ScreenBBS: true, domain.ScreenFileServer: true, domain.ScreenLinks: true,
	domain.ScreenLog: true, domain.ScreenSWSales: true, domain.ScreenHWSales: true,
	domain.ScreenHighSecurity: true,
}

// LoadSeed reads a seed from path, or the built-in seed when path is empty.
func LoadSeed(path string) (*Seed, error) {
	data := defaultSeed
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read world seed %s: %w", path, err)
		}
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a YAML seed.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse world seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid world seed: %w", err)
	}
	return &seed, nil
}

// Validate checks addresses, kinds and screen graphs.
func (s *Seed) Validate() error {
	if s.Gateway.Address == "" {
		return fmt.Errorf("gateway address is required")
	}
	for _, sw := range s.Gateway.Software {
		if sw.Tool == "" || sw.Version < 1 {
			return fmt.Errorf("gateway software needs a tool and a version >= 1")
		}
	}

	addresses := map[string]bool{s.Gateway.Address: true}
	for _, h := range s.Hosts {
		if h.Name == "" || h.Address == "" {
			return fmt.Errorf("host with empty name or address found")
		}
		if addresses[h.Address] {
			return fmt.Errorf("duplicate address: %s", h.Address)
		}
		addresses[h.Address] = true

		if _, ok := hostKinds[h.Kind]; !ok {
			return fmt.Errorf("host %s has unknown kind %q", h.Name, h.Kind)
		}
		if err := validateScreens(h); err != nil {
			return err
		}
		for _, sec := range h.Security {
			if _, ok := securityKinds[sec.Kind]; !ok {
				return fmt.Errorf("host %s has unknown security kind %q", h.Name, sec.Kind)
			}
		}
	}
	return nil
}

func validateScreens(h HostSeed) error {
	if len(h.Screens) == 0 {
		return fmt.Errorf("host %s has no screens", h.Name)
	}
	pages := make(map[int]bool, len(h.Screens))
	for _, sc := range h.Screens {
		if !screenTypes[domain.ScreenType(sc.Type)] {
			return fmt.Errorf("host %s: unknown screen type %d", h.Name, sc.Type)
		}
		if pages[sc.SubPage] {
			return fmt.Errorf("host %s: duplicate sub page %d", h.Name, sc.SubPage)
		}
		pages[sc.SubPage] = true
	}
	for _, sc := range h.Screens {
		if sc.NextPage != nil && !pages[*sc.NextPage] {
			return fmt.Errorf("host %s: sub page %d points to missing page %d", h.Name, sc.SubPage, *sc.NextPage)
		}
		if domain.ScreenType(sc.Type).Gate() && sc.Data1 == "" {
			return fmt.Errorf("host %s: password screen %d has no password", h.Name, sc.SubPage)
		}
	}
	return nil
}
