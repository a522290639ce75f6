// Package store keeps melody signatures in memory, keyed by song identifier.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/himanishpuri/HumDNA/pkg/humdna/audio"
	"github.com/himanishpuri/HumDNA/pkg/humdna/melody"
	"github.com/himanishpuri/HumDNA/pkg/utils"
)

// Store maps song identifiers to signatures. Writers are serialised; readers
// work on copies and never see a partially written entry.
type Store struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*melody.Signature

	extractor  *melody.Extractor
	decoder    audio.Decoder
	sampleRate int
}

// New returns an empty store. extractor and decoder are only needed by Add;
// nil selects the defaults.
func New(extractor *melody.Extractor, decoder audio.Decoder) *Store {
	if extractor == nil {
		extractor = melody.DefaultExtractor()
	}
	if decoder == nil {
		decoder = audio.AutoDecoder{}
	}
	return &Store{
		entries:    make(map[string]*melody.Signature),
		extractor:  extractor,
		decoder:    decoder,
		sampleRate: extractor.Pitch.Params().SampleRate,
	}
}

// Extractor returns the extractor used by Add.
func (s *Store) Extractor() *melody.Extractor {
	return s.extractor
}

// Add decodes source, extracts its signature over at most duration seconds
// and stores it under id. On failure an existing entry for id is kept.
func (s *Store) Add(ctx context.Context, id, source string, duration float64) (*melody.Signature, error) {
	if id == "" {
		return nil, errors.New("empty song id")
	}
	samples, err := s.decoder.Decode(ctx, source, s.sampleRate, duration)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", source, err)
	}
	sig, err := s.extractor.Extract(id, samples, s.sampleRate, duration)
	if err != nil {
		return nil, fmt.Errorf("extracting signature for %s: %w", id, err)
	}
	s.Put(sig)
	return sig.Clone(), nil
}

// Put stores a copy of sig under sig.ID, replacing any previous entry.
func (s *Store) Put(sig *melody.Signature) {
	c := sig.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.entries[c.ID] = c
}

// Load decodes a persisted record and stores it under id.
func (s *Store) Load(id string, record []byte) (*melody.Signature, error) {
	sig, err := melody.DecodeSignature(id, record)
	if err != nil {
		return nil, err
	}
	s.Put(sig)
	return sig, nil
}

// Get returns a copy of the signature stored under id.
func (s *Store) Get(id string) (*melody.Signature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return sig.Clone(), true
}

// Remove deletes id and reports whether it was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns the stored identifiers in insertion order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot returns copies of every entry in insertion order.
func (s *Store) Snapshot() []*melody.Signature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*melody.Signature, len(s.order))
	for i, id := range s.order {
		out[i] = s.entries[id].Clone()
	}
	return out
}

// ContourRef is the part of an entry a query compares against.
type ContourRef struct {
	ID      string
	Contour []int8
}

// Contours returns the id and a copy of the contour of every entry in
// insertion order. Pitch tracks are not copied.
func (s *Store) Contours() []ContourRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ContourRef, len(s.order))
	for i, id := range s.order {
		out[i] = ContourRef{ID: id, Contour: slices.Clone(s.entries[id].Contour)}
	}
	return out
}

// LoadFailure describes one record that could not be loaded.
type LoadFailure struct {
	ID  string
	Err error
}

// LoadReport summarises a batch load.
type LoadReport struct {
	Loaded []string
	Failed []LoadFailure
}

// LoadDir loads every <id>.sig file in dir. Bad records are reported and
// skipped.
func (s *Store) LoadDir(dir string) (LoadReport, error) {
	var report LoadReport
	entries, err := os.ReadDir(dir)
	if err != nil {
		return report, fmt.Errorf("reading signature directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != melody.SignatureExt {
			continue
		}
		id := strings.TrimSuffix(e.Name(), melody.SignatureExt)
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err == nil {
			_, err = s.Load(id, data)
		}
		if err != nil {
			report.Failed = append(report.Failed, LoadFailure{ID: id, Err: err})
			continue
		}
		report.Loaded = append(report.Loaded, id)
	}
	return report, nil
}

// SaveDir writes every entry to dir as <id>.sig.
func (s *Store) SaveDir(dir string) error {
	if err := utils.MakeDir(dir); err != nil {
		return fmt.Errorf("creating signature directory: %w", err)
	}
	for _, sig := range s.Snapshot() {
		path := filepath.Join(dir, sig.ID+melody.SignatureExt)
		if err := melody.WriteSignatureFile(path, sig); err != nil {
			return fmt.Errorf("saving %s: %w", sig.ID, err)
		}
	}
	return nil
}
