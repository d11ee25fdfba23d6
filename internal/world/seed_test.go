package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
)

func TestDefaultSeedIsValid(t *testing.T) {
	seed, err := LoadSeed("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", seed.Gateway.Address)
	assert.NotEmpty(t, seed.Hosts)
	assert.NotEmpty(t, seed.Headlines)
	assert.NotEmpty(t, seed.Employers)

	monitored := 0
	for _, h := range seed.Hosts {
		for _, sec := range h.Security {
			if securityKinds[sec.Kind] == domain.SecurityMonitor {
				monitored++
			}
		}
	}
	assert.Positive(t, monitored)
}

func TestLoadSeedFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  address: 10.0.0.1
hosts:
  - name: Relay
    address: 10.0.0.2
    kind: public
    screens:
      - { type: 1, sub_page: 0, title: Hello, data1: hi }
`), 0o644))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Hosts, 1)
	assert.Equal(t, "Relay", seed.Hosts[0].Name)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeedValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing gateway", `hosts: []`},
		{"duplicate address", `
gateway: { address: 1.1.1.1 }
hosts:
  - { name: A, address: 1.1.1.1, kind: public, screens: [{ type: 1, sub_page: 0, title: x }] }`},
		{"unknown kind", `
gateway: { address: 1.1.1.1 }
hosts:
  - { name: A, address: 2.2.2.2, kind: casino, screens: [{ type: 1, sub_page: 0, title: x }] }`},
		{"no screens", `
gateway: { address: 1.1.1.1 }
hosts:
  - { name: A, address: 2.2.2.2, kind: public }`},
		{"dangling next page", `
gateway: { address: 1.1.1.1 }
hosts:
  - { name: A, address: 2.2.2.2, kind: public, screens: [{ type: 1, sub_page: 0, next_page: 4, title: x }] }`},
		{"password screen without password", `
gateway: { address: 1.1.1.1 }
hosts:
  - { name: A, address: 2.2.2.2, kind: public, screens: [{ type: 2, sub_page: 0, title: x }] }`},
		{"unknown security", `
gateway: { address: 1.1.1.1 }
hosts:
  - name: A
    address: 2.2.2.2
    kind: public
    screens: [{ type: 1, sub_page: 0, title: x }]
    security: [{ kind: laser, level: 1 }]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSeed([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}
