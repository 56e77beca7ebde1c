// Package wpcli talks to a WordPress installation through the wp-cli
// binary. It is the host side of the installed-plugin registry: the
// authoritative record of what is installed and active, and the installer
// that performs the actual download and extraction.
package wpcli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gitplug/gitplug/internal/ports"
)

// Config configures the wp-cli client.
type Config struct {
	// Bin is the wp-cli binary, default "wp".
	Bin string
	// Path is the WordPress root passed as --path. Optional when wp-cli
	// can discover the installation itself.
	Path string
}

func (c Config) withDefaults() Config {
	if c.Bin == "" {
		c.Bin = "wp"
	}
	return c
}

// Client implements ports.InstalledRegistry and ports.Installer over wp-cli.
type Client struct {
	cfg    Config
	runner ports.CommandRunner
	logger ports.Logger
}

// NewClient creates a wp-cli client.
func NewClient(cfg Config, runner ports.CommandRunner, logger ports.Logger) *Client {
	return &Client{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

func (c *Client) args(base ...string) []string {
	if c.cfg.Path != "" {
		return append(base, "--path="+c.cfg.Path)
	}
	return base
}

// wpPlugin is one row of `wp plugin list --format=json`.
type wpPlugin struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Version string `json:"version"`
	File    string `json:"file"`
	Title   string `json:"title"`
}

func (p wpPlugin) toPort() ports.InstalledPlugin {
	return ports.InstalledPlugin{
		Slug:    p.Name,
		File:    p.File,
		Name:    p.Title,
		Version: p.Version,
		Active:  p.Status == "active" || p.Status == "active-network",
	}
}

// List returns every installed plugin.
func (c *Client) List(ctx context.Context) ([]ports.InstalledPlugin, error) {
	result, err := c.runner.Run(ctx, c.cfg.Bin,
		c.args("plugin", "list", "--format=json", "--fields=name,status,version,file,title")...)
	if err != nil {
		return nil, fmt.Errorf("run wp plugin list: %w", err)
	}
	if !result.Success() {
		return nil, fmt.Errorf("wp plugin list failed: %s", strings.TrimSpace(result.Stderr))
	}

	var raw []wpPlugin
	if err := json.Unmarshal([]byte(result.Stdout), &raw); err != nil {
		return nil, fmt.Errorf("parse wp plugin list: %w", err)
	}

	plugins := make([]ports.InstalledPlugin, 0, len(raw))
	for _, p := range raw {
		plugins = append(plugins, p.toPort())
	}
	return plugins, nil
}

// Lookup returns the installed plugin matching slug. Absence is reported
// through the bool, not an error.
func (c *Client) Lookup(ctx context.Context, slug string) (ports.InstalledPlugin, bool, error) {
	plugins, err := c.List(ctx)
	if err != nil {
		return ports.InstalledPlugin{}, false, err
	}
	for _, p := range plugins {
		if strings.EqualFold(p.Slug, slug) {
			return p, true, nil
		}
	}
	return ports.InstalledPlugin{}, false, nil
}

// Activate activates an installed plugin.
func (c *Client) Activate(ctx context.Context, slug string) error {
	result, err := c.runner.Run(ctx, c.cfg.Bin, c.args("plugin", "activate", slug)...)
	if err != nil {
		return fmt.Errorf("run wp plugin activate: %w", err)
	}
	if !result.Success() {
		return fmt.Errorf("activate %s failed: %s", slug, strings.TrimSpace(result.Stderr))
	}
	c.logger.Info(ctx, "plugin activated", ports.F("slug", slug))
	return nil
}

// Deactivate deactivates an installed plugin.
func (c *Client) Deactivate(ctx context.Context, slug string) error {
	result, err := c.runner.Run(ctx, c.cfg.Bin, c.args("plugin", "deactivate", slug)...)
	if err != nil {
		return fmt.Errorf("run wp plugin deactivate: %w", err)
	}
	if !result.Success() {
		return fmt.Errorf("deactivate %s failed: %s", slug, strings.TrimSpace(result.Stderr))
	}
	c.logger.Info(ctx, "plugin deactivated", ports.F("slug", slug))
	return nil
}

// Install installs the repository's plugin from its GitHub archive and
// returns the fresh registry entry. wp-cli handles download, extraction
// and directory naming; success is confirmed by re-reading the registry
// rather than assumed.
func (c *Client) Install(ctx context.Context, fullName, branch string) (ports.InstalledPlugin, error) {
	if branch == "" {
		branch = "main"
	}
	archive := fmt.Sprintf("https://github.com/%s/archive/refs/heads/%s.zip", fullName, branch)

	result, err := c.runner.Run(ctx, c.cfg.Bin, c.args("plugin", "install", archive)...)
	if err != nil {
		return ports.InstalledPlugin{}, fmt.Errorf("run wp plugin install: %w", err)
	}
	if !result.Success() {
		return ports.InstalledPlugin{}, fmt.Errorf("install %s failed: %s", fullName, strings.TrimSpace(result.Stderr))
	}

	slug := deriveSlug(fullName)
	installed, found, err := c.Lookup(ctx, slug)
	if err != nil {
		return ports.InstalledPlugin{}, err
	}
	if !found {
		// The archive may extract into name-branch; try that before
		// giving up.
		installed, found, err = c.Lookup(ctx, slug+"-"+strings.ToLower(branch))
		if err != nil {
			return ports.InstalledPlugin{}, err
		}
	}
	if !found {
		return ports.InstalledPlugin{}, fmt.Errorf("install %s reported success but %q is not in the registry", fullName, slug)
	}

	c.logger.Info(ctx, "plugin installed",
		ports.F("repo", fullName),
		ports.F("slug", installed.Slug),
		ports.F("version", installed.Version))
	return installed, nil
}

func deriveSlug(fullName string) string {
	_, name, _ := strings.Cut(fullName, "/")
	return strings.ToLower(strings.TrimSpace(name))
}

// Ensure Client implements both host-facing ports.
var (
	_ ports.InstalledRegistry = (*Client)(nil)
	_ ports.Installer         = (*Client)(nil)
)
