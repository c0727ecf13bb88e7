package appconfig

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/ppac/pkg/analytics"
	"github.com/platinummonkey/ppac/pkg/async"
)

// ErrNotLoaded is returned before a file provider has loaded a valid configuration
var ErrNotLoaded = errors.New("appconfig: no configuration loaded")

// Validate checks the ranges of the submission parameters
func Validate(cfg *analytics.SubmissionConfiguration) error {
	if cfg.SubmissionProbability < 0 || cfg.SubmissionProbability > 1 {
		return fmt.Errorf("submission probability must be within [0,1], got %v", cfg.SubmissionProbability)
	}
	if cfg.HoursSinceTestRegistrationToSubmitTestResultMetadata < 0 {
		return fmt.Errorf("hours since test registration must not be negative")
	}
	if cfg.HoursSinceTestResultToSubmitKeySubmissionMetadata < 0 {
		return fmt.Errorf("hours since test result must not be negative")
	}
	return nil
}

// StaticProvider always returns the same configuration
type StaticProvider struct {
	cfg analytics.SubmissionConfiguration
}

// NewStaticProvider creates a provider for a fixed configuration
func NewStaticProvider(cfg analytics.SubmissionConfiguration) (*StaticProvider, error) {
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &StaticProvider{cfg: cfg}, nil
}

// CurrentConfiguration implements analytics.ConfigurationProvider
func (p *StaticProvider) CurrentConfiguration(ctx context.Context) (*analytics.SubmissionConfiguration, error) {
	cfg := p.cfg
	return &cfg, nil
}

// FileProvider serves the configuration from a YAML file and reloads it
// whenever the file changes. A file that fails to parse or validate is
// logged and ignored; the last good configuration stays in effect.
type FileProvider struct {
	path   string
	logger logrus.FieldLogger

	mu      sync.RWMutex
	current *analytics.SubmissionConfiguration
}

// NewFileProvider loads path once and fails if it is not a valid configuration
func NewFileProvider(path string, logger logrus.FieldLogger) (*FileProvider, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &FileProvider{
		path:   path,
		logger: logger.WithField("component", "appconfig").WithField("path", path),
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// CurrentConfiguration implements analytics.ConfigurationProvider
func (p *FileProvider) CurrentConfiguration(ctx context.Context) (*analytics.SubmissionConfiguration, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil, ErrNotLoaded
	}
	cfg := *p.current
	return &cfg, nil
}

// Reload reads the file again. On error the previous configuration is kept.
func (p *FileProvider) Reload() error {
	cfg, err := loadFile(p.path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.current = cfg
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"etag":        cfg.ETag,
		"probability": cfg.SubmissionProbability,
	}).Info("Loaded app configuration")
	return nil
}

// Watch reloads the configuration on file changes until ctx is done. The
// parent directory is watched so editors that replace the file are noticed.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(p.path), err)
	}

	async.SafeGo(ctx, p.logger, 0, "appconfig watcher", func(ctx context.Context) error {
		defer watcher.Close()
		p.watch(ctx, watcher)
		return nil
	})
	return nil
}

func (p *FileProvider) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	target := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// Only care about write, create and rename events for our file
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := p.Reload(); err != nil {
				p.logger.WithError(err).Warn("Ignoring invalid app configuration")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.WithError(err).Warn("Watcher error")
		}
	}
}

func loadFile(path string) (*analytics.SubmissionConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app configuration: %w", err)
	}

	var cfg analytics.SubmissionConfiguration
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse app configuration: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid app configuration: %w", err)
	}

	// Files without an explicit etag are fingerprinted by content
	if cfg.ETag == "" {
		sum := sha256.Sum256(data)
		cfg.ETag = hex.EncodeToString(sum[:8])
	}
	return &cfg, nil
}
