// Package config loads, validates, and hot-reloads the YAML configuration.
//
// Only a subset of the file is safe to change at runtime (the logging
// section); structural settings like the database path or bot token take
// effect on restart. Subscribers receive the full parsed Config on every
// accepted reload and apply what they care about.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v3"

	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

var envRef = regexp.MustCompile(`^\$\{(\w+)\}$`)

type Manager struct {
	path     string
	validate *validator.Validate
	log      logx.Logger

	mu  sync.RWMutex
	cfg *Config

	// subsMu guards the subscriber list so a publish never sends on a
	// channel that Unsubscribe is concurrently closing.
	subsMu sync.Mutex
	subs   []chan *Config
}

func NewManager(path string, log logx.Logger) *Manager {
	return &Manager{
		path:     path,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// Load parses, validates, and commits the config file. Startup calls this
// once and treats any error as fatal.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.parse()
	if err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", m.path, err)
	}
	cfg.Defaults()
	resolveEnvRefs(&cfg)

	if err := m.validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", m.path, err)
	}
	return &cfg, nil
}

// resolveEnvRefs substitutes "${VAR}" values with the environment, so
// secrets like the bot token stay out of the file.
func resolveEnvRefs(cfg *Config) {
	if mt := envRef.FindStringSubmatch(cfg.Bot.Token); mt != nil {
		cfg.Bot.Token = os.Getenv(mt[1])
	}
}

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// Subscribe returns a channel receiving each accepted config reload.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
		default:
			// Slow subscriber; it will pick up the next reload.
		}
	}
}

// Watch re-reads the file on change until ctx is done. A reload that fails to
// parse or validate is logged and discarded; the previous config stays
// committed.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}

	// Debounce so editors doing write+rename do not trigger a reload per
	// syscall, and so we never read a half-written file.
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			cfg, err := m.parse()
			if err != nil {
				m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
				return
			}
			m.commit(cfg)
			m.publish(cfg)
			m.log.Info("config reloaded", logx.String("path", m.path))
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}
