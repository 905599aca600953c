package profile

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/unicode/norm"
)

//go:embed schema.json profiles/*.yaml
var embedded embed.FS

// ErrNoGeneric is returned when a profile set has no generic fallback.
var ErrNoGeneric = errors.New("no generic profile")

// Store holds the loaded profile set. It is safe for concurrent use and
// can be reloaded while in use.
type Store struct {
	dir string
	log *slog.Logger

	mu       sync.RWMutex
	profiles []*Profile // sorted by name
	generic  *Profile

	callbacks []func(*Store)
}

// Detection is the result of matching a publisher string.
type Detection struct {
	Profile  *Profile
	Alias    string // the alias that matched, "" on fallback
	Fallback bool   // true when the generic profile was chosen
}

// Load reads the embedded profiles and overlays every *.yaml or *.yml file
// in dir. A file whose profile name matches an embedded profile replaces
// it. dir may be empty.
func Load(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{dir: dir, log: log}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads all profiles. On error the previous set stays active.
func (s *Store) Reload() error {
	byName := make(map[string]*Profile)

	entries, err := fs.ReadDir(embedded, "profiles")
	if err != nil {
		return fmt.Errorf("reading embedded profiles: %w", err)
	}
	for _, e := range entries {
		data, err := embedded.ReadFile("profiles/" + e.Name())
		if err != nil {
			return fmt.Errorf("reading embedded profile %s: %w", e.Name(), err)
		}
		p, err := Parse(data, "embedded:"+e.Name())
		if err != nil {
			return err
		}
		byName[p.Name] = p
	}

	if s.dir != "" {
		files, err := profileFiles(s.dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return fmt.Errorf("reading profile: %w", err)
			}
			p, err := Parse(data, f)
			if err != nil {
				return err
			}
			if prev, ok := byName[p.Name]; ok {
				s.log.Debug("profile overridden", "name", p.Name, "previous", prev.Source, "source", f)
			}
			byName[p.Name] = p
		}
	}

	profiles := make([]*Profile, 0, len(byName))
	var generic *Profile
	for _, p := range byName {
		if p.Generic {
			if generic != nil {
				return fmt.Errorf("profiles %s and %s are both generic", generic.Name, p.Name)
			}
			generic = p
		}
		profiles = append(profiles, p)
	}
	if generic == nil {
		return ErrNoGeneric
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })

	for _, p := range profiles {
		if p == generic {
			continue
		}
		if len(p.titles) == 0 {
			p.titles = generic.titles
		}
		if p.Content.NavFallbackThreshold == 0 {
			p.Content.NavFallbackThreshold = generic.Content.NavFallbackThreshold
		}
	}

	s.mu.Lock()
	s.profiles = profiles
	s.generic = generic
	callbacks := make([]func(*Store), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	s.log.Debug("profiles loaded", "count", len(profiles), "dir", s.dir)
	for _, fn := range callbacks {
		fn(s)
	}
	return nil
}

func profileFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading profile directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isProfileFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func isProfileFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Profiles returns the loaded profiles sorted by name.
func (s *Store) Profiles() []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Profile, len(s.profiles))
	copy(out, s.profiles)
	return out
}

// Get returns a profile by name.
func (s *Store) Get(name string) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Generic returns the fallback profile.
func (s *Store) Generic() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generic
}

// Detect selects the profile for a publisher string. The publisher and
// every alias are NFKC-normalized, case-folded and stripped of spaces
// before a substring test; the longest matching alias wins. When nothing
// matches, the generic profile is returned with Fallback set.
func (s *Store) Detect(publisher string) Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := normalize(publisher)
	var best Detection
	bestLen := 0
	if key != "" {
		for _, p := range s.profiles {
			for _, alias := range p.Aliases {
				a := normalize(alias)
				if a == "" || !strings.Contains(key, a) {
					continue
				}
				if len(a) > bestLen {
					best = Detection{Profile: p, Alias: alias}
					bestLen = len(a)
				}
			}
		}
	}

	if best.Profile == nil {
		s.log.Info("publisher not recognized, using generic profile", "publisher", publisher)
		return Detection{Profile: s.generic, Fallback: true}
	}
	return best
}

func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), "")
}

// OnReload registers a callback run after every successful reload.
func (s *Store) OnReload(fn func(*Store)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Watch reloads the store whenever a profile file in the overlay directory
// changes, until ctx is cancelled. A reload that fails validation is logged
// and the previous profile set stays active.
func (s *Store) Watch(ctx context.Context) error {
	if s.dir == "" {
		return errors.New("no profile directory to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", s.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isProfileFile(ev.Name) || ev.Op == fsnotify.Chmod {
					continue
				}
				if err := s.Reload(); err != nil {
					s.log.Warn("profile reload failed", "file", ev.Name, "error", err)
					continue
				}
				s.log.Info("profiles reloaded", "file", ev.Name, "op", ev.Op.String())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("profile watcher error", "error", err)
			}
		}
	}()
	return nil
}
