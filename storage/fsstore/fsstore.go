// Package fsstore implements storage.Store (§4.4) on the local
// filesystem, replicating the same versioned-object contract as the
// original bucket-backed implementation: oldest-version-is-canonical
// reads, delete-marker rejection, and an atomic "object already exists"
// conflict on generation flush. No object-store client library exists
// anywhere in the example pack this module was grounded on, so this
// backend gives the same contract a concrete, runnable home without
// fabricating one.
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	abcd "github.com/tearne/abcd-go"
	"github.com/tearne/abcd-go/abcderr"
	"github.com/tearne/abcd-go/particle"
	"github.com/tearne/abcd-go/storage"
)

var errGenerationAlreadyExists = storage.ErrGenerationAlreadyExists

// ErrGenerationAlreadyExists re-exports storage.ErrGenerationAlreadyExists
// for callers that only import fsstore directly.
var ErrGenerationAlreadyExists = errGenerationAlreadyExists

// Store is a versioned object store rooted at a directory on the local
// filesystem. Safe for concurrent use by multiple goroutines sharing one
// Store value; not safe to share across processes without a shared
// filesystem (e.g. NFS), since version-listing races are only guarded
// in-process.
type Store[P abcd.Vector[P]] struct {
	baseDir string
	factory abcd.Factory[P]
	mu      sync.Mutex
	seq     uint64
}

// New returns a Store rooted at baseDir. Call Init before first use.
func New[P abcd.Vector[P]](baseDir string, factory abcd.Factory[P]) *Store[P] {
	return &Store[P]{baseDir: baseDir, factory: factory}
}

// Init creates the bucket layout and writes the init marker. Idempotent.
func (s *Store[P]) Init() error {
	if err := os.MkdirAll(s.completedDir(), 0o755); err != nil {
		return abcderr.Infrastructuref(err, "creating completed directory")
	}
	if err := os.MkdirAll(filepath.Join(s.baseDir, "particles"), 0o755); err != nil {
		return abcderr.Infrastructuref(err, "creating particles directory")
	}
	marker := s.initMarkerPath()
	if _, err := os.Stat(marker); err == nil {
		return nil
	}
	if err := os.WriteFile(marker, []byte("{}"), 0o644); err != nil {
		return abcderr.Infrastructuref(err, "writing init marker")
	}
	return nil
}

// Purge removes the Store's root directory (bucket and prefix joined) and
// everything under it, mirroring the original purge_all_versions_of_everything_in_prefix
// contract against a local directory tree rather than a bucket API. The
// bucket directory itself is left in place.
func (s *Store[P]) Purge() error {
	if err := os.RemoveAll(s.baseDir); err != nil {
		return abcderr.Infrastructuref(err, "purging %s", s.baseDir)
	}
	return nil
}

func (s *Store[P]) completedDir() string   { return filepath.Join(s.baseDir, "completed") }
func (s *Store[P]) initMarkerPath() string { return filepath.Join(s.completedDir(), "abcd.init") }

func (s *Store[P]) genVersionsDir(n uint16) string {
	return filepath.Join(s.completedDir(), fmt.Sprintf("gen_%03d", n), "objects")
}

func (s *Store[P]) particlesDir(genNumber uint16, accepted bool) string {
	sub := "rejected"
	if accepted {
		sub = "accepted"
	}
	return filepath.Join(s.baseDir, "particles", fmt.Sprintf("gen_%03d", genNumber), sub)
}

func (s *Store[P]) nextSeq() uint64 { return atomic.AddUint64(&s.seq, 1) }

func (s *Store[P]) versionFilename(ext string) string {
	return fmt.Sprintf("%020d-%06d.%s", time.Now().UnixNano(), s.nextSeq()%1000000, ext)
}

// listVersions returns the version filenames for generation n sorted
// oldest-first. A generation with no versions on disk yet returns an
// empty, non-error result.
func (s *Store[P]) listVersions(n uint16) ([]string, error) {
	dir := s.genVersionsDir(n)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ensureOnlyOldestVersion deletes every version of generation n except
// the oldest, then returns the oldest's filename ("" if none exist).
func (s *Store[P]) ensureOnlyOldestVersion(n uint16) (string, error) {
	versions, err := s.listVersions(n)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", nil
	}
	dir := s.genVersionsDir(n)
	for _, v := range versions[1:] {
		_ = os.Remove(filepath.Join(dir, v))
	}
	return versions[0], nil
}

func (s *Store[P]) PreviousGenNumber(ctx context.Context) (uint16, error) {
	if _, err := os.Stat(s.initMarkerPath()); err != nil {
		return 0, abcderr.Infrastructuref(err, "cluster is not initialised: init marker missing")
	}

	var maxN uint16
	err := withRetry(ctx, func() error {
		entries, err := os.ReadDir(s.completedDir())
		if err != nil {
			return err
		}
		maxN = 0
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			var n uint16
			if _, scanErr := fmt.Sscanf(e.Name(), "gen_%03d", &n); scanErr != nil {
				continue
			}
			versions, verErr := s.listVersions(n)
			if verErr != nil {
				return verErr
			}
			if len(versions) > 0 && n > maxN {
				maxN = n
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return maxN, nil
}

func (s *Store[P]) LoadPreviousGen(ctx context.Context) (particle.Generation[P], error) {
	n, err := s.PreviousGenNumber(ctx)
	if err != nil {
		return particle.Generation[P]{}, err
	}
	if n == 0 {
		return particle.Generation[P]{}, abcderr.Systemf("no completed generation to load: generation 0 is virtual")
	}

	var oldest string
	err = withRetry(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		o, vErr := s.ensureOnlyOldestVersion(n)
		if vErr != nil {
			return vErr
		}
		oldest = o
		return nil
	})
	if err != nil {
		return particle.Generation[P]{}, err
	}
	if oldest == "" {
		return particle.Generation[P]{}, abcderr.Systemf("generation %d has no versions on disk", n)
	}
	if strings.HasSuffix(oldest, ".deleted") {
		return particle.Generation[P]{}, abcderr.Systemf("canonical version of generation %d is a delete marker", n)
	}

	path := filepath.Join(s.genVersionsDir(n), oldest)
	var gen particle.Generation[P]
	err = withRetry(ctx, func() error {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		if jsonErr := json.Unmarshal(data, &gen); jsonErr != nil {
			return abcderr.Systemf("generation %d file is not valid JSON: %v", n, jsonErr)
		}
		if gen.Number != n {
			return abcderr.Systemf("generation file under gen_%03d deserialised with Number %d", n, gen.Number)
		}
		return nil
	})
	if err != nil {
		return particle.Generation[P]{}, err
	}
	return gen, nil
}

func (s *Store[P]) SaveParticle(ctx context.Context, p particle.Particle[P], genNumber uint16) (string, error) {
	prevNum, err := s.PreviousGenNumber(ctx)
	if err != nil {
		return "", err
	}
	if genNumber <= prevNum {
		return "", abcderr.StaleGenerationf("generation %d already flushed (previous_gen_number is now %d)", genNumber, prevNum)
	}
	if genNumber != prevNum+1 {
		return "", abcderr.Systemf("gen_number %d is not previous_gen_number()+1 (%d)", genNumber, prevNum+1)
	}

	dir := s.particlesDir(genNumber, p.Weight > 0)
	var key string
	err = withRetry(ctx, func() error {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return mkErr
		}
		data, jsonErr := json.Marshal(p)
		if jsonErr != nil {
			return abcderr.Systemf("marshalling particle: %v", jsonErr)
		}
		name := uuid.NewString() + ".json"
		key = filepath.Join(dir, name)
		return os.WriteFile(key, data, 0o644)
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *Store[P]) NumAcceptedParticles(ctx context.Context) (uint32, error) {
	n, err := s.countParticles(ctx, true)
	return uint32(n), err
}

func (s *Store[P]) NumRejectedParticles(ctx context.Context) (uint64, error) {
	return s.countParticles(ctx, false)
}

func (s *Store[P]) countParticles(ctx context.Context, accepted bool) (uint64, error) {
	prevNum, err := s.PreviousGenNumber(ctx)
	if err != nil {
		return 0, err
	}
	dir := s.particlesDir(prevNum+1, accepted)
	var count uint64
	err = withRetry(ctx, func() error {
		entries, readErr := os.ReadDir(dir)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				count = 0
				return nil
			}
			return readErr
		}
		count = 0
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if !strings.HasSuffix(e.Name(), ".json") {
				return abcderr.Systemf("non-JSON object %q found in particle prefix", e.Name())
			}
			count++
		}
		return nil
	})
	return count, err
}

func (s *Store[P]) LoadAcceptedParticles(ctx context.Context) ([]particle.Particle[P], error) {
	prevNum, err := s.PreviousGenNumber(ctx)
	if err != nil {
		return nil, err
	}
	dir := s.particlesDir(prevNum+1, true)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, abcderr.Systemf("no accepted particles found for generation %d", prevNum+1)
		}
		return nil, abcderr.Infrastructuref(err, "listing accepted particles")
	}

	type result struct {
		p   particle.Particle[P]
		err error
	}
	results := make(chan result, len(entries))
	var wg sync.WaitGroup
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !strings.HasSuffix(name, ".json") {
				results <- result{err: abcderr.Systemf("non-JSON object %q found in accepted prefix", name)}
				return
			}
			data, readErr := os.ReadFile(filepath.Join(dir, name))
			if readErr != nil {
				results <- result{err: abcderr.Infrastructuref(readErr, "reading accepted particle %q", name)}
				return
			}
			var p particle.Particle[P]
			if jsonErr := json.Unmarshal(data, &p); jsonErr != nil {
				results <- result{err: abcderr.Systemf("accepted particle %q is not valid JSON: %v", name, jsonErr)}
				return
			}
			results <- result{p: p}
		}()
	}
	wg.Wait()
	close(results)

	particles := make([]particle.Particle[P], 0, len(entries))
	for r := range results {
		if r.err != nil {
			return nil, r.err
		}
		particles = append(particles, r.p)
	}
	return particles, nil
}

func (s *Store[P]) SaveNewGen(ctx context.Context, gen particle.Generation[P]) error {
	return withRetry(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		// Check for an existing version of this exact generation number
		// first, under the lock: if another worker's SaveNewGen already
		// completed for gen.Number, that is always a benign lost race,
		// regardless of what PreviousGenNumber would now report.
		versions, vErr := s.listVersions(gen.Number)
		if vErr != nil {
			return vErr
		}
		if len(versions) > 0 {
			return errGenerationAlreadyExists
		}

		prevNum, err := s.PreviousGenNumber(ctx)
		if err != nil {
			return err
		}
		if gen.Number != prevNum+1 {
			return abcderr.Systemf("generation number %d is not previous_gen_number()+1 (%d)", gen.Number, prevNum+1)
		}

		dir := s.genVersionsDir(gen.Number)
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return mkErr
		}
		data, jsonErr := json.Marshal(gen)
		if jsonErr != nil {
			return abcderr.Systemf("marshalling generation: %v", jsonErr)
		}
		path := filepath.Join(dir, s.versionFilename("json"))
		return os.WriteFile(path, data, 0o644)
	})
}
