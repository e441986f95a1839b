package tournament

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/vocdoni/sealbid-node/circuits"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types/params"
)

// ManifestFile is the name of the file listing the stored artifacts of each
// slot count in an artifacts directory.
const ManifestFile = "manifest.json"

// Manifest maps a slot count to the hashes of its stored artifacts.
type Manifest map[int]circuits.ArtifactHashes

// MarshalJSON writes slot counts as object keys.
func (m Manifest) MarshalJSON() ([]byte, error) {
	out := make(map[string]circuits.ArtifactHashes, len(m))
	for n, h := range m {
		out[strconv.Itoa(n)] = h
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	raw := map[string]circuits.ArtifactHashes{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = make(Manifest, len(raw))
	for k, h := range raw {
		n, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("invalid slot count %q: %w", k, err)
		}
		(*m)[n] = h
	}
	return nil
}

// SlotCounts returns the slot counts of the manifest in increasing order.
func (m Manifest) SlotCounts() []int {
	ns := make([]int, 0, len(m))
	for n := range m {
		ns = append(ns, n)
	}
	sort.Ints(ns)
	return ns
}

// ArtifactSet provides the resolution circuit artifacts per slot count.
// Artifacts not loaded from disk are built on first use: compiled only, or
// compiled and set up when the set was created with setup enabled.
type ArtifactSet struct {
	mu    sync.Mutex
	byN   map[int]*circuits.Artifacts
	setup bool
}

// NewArtifactSet returns an empty set. With setup the lazily built
// artifacts include groth16 keys.
func NewArtifactSet(setup bool) *ArtifactSet {
	return &ArtifactSet{byN: map[int]*circuits.Artifacts{}, setup: setup}
}

// LoadArtifactSet reads the manifest in dir and loads every listed slot
// count. Slot counts missing from the manifest are built on demand like in
// NewArtifactSet.
func LoadArtifactSet(dir string, setup bool) (*ArtifactSet, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read artifacts manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode artifacts manifest: %w", err)
	}
	s := NewArtifactSet(setup)
	for _, n := range manifest.SlotCounts() {
		a, err := circuits.LoadArtifacts(params.ResolveCurve, dir, manifest[n])
		if err != nil {
			return nil, fmt.Errorf("load artifacts for %d slots: %w", n, err)
		}
		s.byN[n] = a
		log.Debugw("resolution artifacts loaded", "slots", n, "ccs", manifest[n].ConstraintSystem)
	}
	return s, nil
}

// WriteManifest stores manifest in dir.
func WriteManifest(dir string, manifest Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644)
}

// Add registers prebuilt artifacts for n slots.
func (s *ArtifactSet) Add(n int, a *circuits.Artifacts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byN[n] = a
}

// Get returns the artifacts for n slots, building them if needed.
func (s *ArtifactSet) Get(n int) (*circuits.Artifacts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.byN[n]; ok {
		return a, nil
	}
	var a *circuits.Artifacts
	var err error
	if s.setup {
		a, err = circuits.Setup(params.ResolveCurve, Placeholder(n))
	} else {
		a, err = circuits.Compile(params.ResolveCurve, Placeholder(n))
	}
	if err != nil {
		return nil, fmt.Errorf("build artifacts for %d slots: %w", n, err)
	}
	log.Infow("resolution circuit built", "slots", n, "setup", s.setup,
		"constraints", a.ConstraintSystem().GetNbConstraints())
	s.byN[n] = a
	return a, nil
}
