package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
)

// pluginManifest is the on-disk YAML shape of a plugin descriptor.
type pluginManifest struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	ScanLevel   int            `yaml:"scan_level"`
	Consumes    []string       `yaml:"consumes"`
	OCIImage    string         `yaml:"oci_image"`
	OCIArgs     []string       `yaml:"oci_arguments"`
	Grants      []plugin.Grant `yaml:"grants"`
	BatchSize   int            `yaml:"batch_size"`
	Interval    int            `yaml:"interval"`
	Cron        string         `yaml:"cron"`
}

// PluginSync loads plugin manifests from a directory and upserts them into
// the catalog. Plugins are defined out-of-band as YAML files shipped with
// their images; the scheduler only ever reads them.
type PluginSync struct {
	plugins plugin.Repository
	logger  *logger.Logger
}

// NewPluginSync creates a PluginSync.
func NewPluginSync(plugins plugin.Repository, log *logger.Logger) *PluginSync {
	return &PluginSync{
		plugins: plugins,
		logger:  log.With("component", "plugin_sync"),
	}
}

// SyncDir upserts every plugin manifest under dir. A broken manifest is
// reported but does not stop the remaining files from syncing. Returns the
// number of plugins synced.
func (s *PluginSync) SyncDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read plugin directory: %w", err)
	}

	synced := 0
	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := s.syncFile(ctx, path); err != nil {
			s.logger.Error("plugin manifest sync failed", "path", path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		synced++
	}
	return synced, firstErr
}

func (s *PluginSync) syncFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var manifest pluginManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}

	p, err := plugin.New(manifest.ID, manifest.Name, manifest.OCIImage, plugin.ScanLevel(manifest.ScanLevel))
	if err != nil {
		return err
	}
	p.Description = manifest.Description
	p.Consumes = manifest.Consumes
	p.OCIArguments = manifest.OCIArgs
	p.Grants = manifest.Grants
	p.BatchSize = manifest.BatchSize
	p.Interval = manifest.Interval
	p.Cron = manifest.Cron
	p.UpdatedAt = time.Now()

	if err := s.plugins.Upsert(ctx, p); err != nil {
		return err
	}

	s.logger.Info("plugin synced", "plugin_id", p.PluginID, "image", p.OCIImage)
	return nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
