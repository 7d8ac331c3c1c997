package genesis

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ecomchain/crypto"
)

// GenesisSpec seeds the ledger of a fresh node.
type GenesisSpec struct {
	GenesisTime string            `yaml:"genesisTime"`
	Alloc       map[string]uint64 `yaml:"alloc"`

	genesisTimestamp time.Time
	balances         []Allocation
}

// Allocation is a validated alloc entry.
type Allocation struct {
	Address [20]byte
	Amount  uint64
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	return ParseGenesisSpec(raw)
}

// ParseGenesisSpec decodes and validates a YAML genesis document.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec: %w", err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Allocations returns the validated balances sorted by address.
func (s *GenesisSpec) Allocations() []Allocation {
	out := make([]Allocation, len(s.balances))
	copy(out, s.balances)
	return out
}

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	s.balances = s.balances[:0]
	for addr, amount := range s.Alloc {
		parsed, err := crypto.ParseAddress(addr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addr, err)
		}
		if amount == 0 {
			return fmt.Errorf("alloc %q: amount must be positive", addr)
		}
		s.balances = append(s.balances, Allocation{Address: parsed, Amount: amount})
	}
	sort.Slice(s.balances, func(i, j int) bool {
		return bytes.Compare(s.balances[i].Address[:], s.balances[j].Address[:]) < 0
	})
	return nil
}

func parseGenesisTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid genesisTime %q: %w", raw, err)
	}
	return ts.UTC(), nil
}
