package ports

import "context"

// InstalledPlugin describes one plugin known to the host's registry.
type InstalledPlugin struct {
	// Slug is the host-side identifier, usually the plugin directory name.
	Slug string
	// File is the plugin entry file relative to the plugins directory,
	// e.g. "my-plugin/my-plugin.php".
	File string
	// Name is the display name taken from the plugin header.
	Name string
	// Version is the installed version, if the host reports one.
	Version string
	// Active reports whether the plugin is currently activated.
	Active bool
}

// InstalledRegistry is the host environment's authoritative record of which
// plugins are installed and whether they are active. The core only reads
// facts and requests activation changes through this interface; it never
// inspects the host's plugin storage directly.
type InstalledRegistry interface {
	// Lookup returns the installed plugin matching slug. The second return
	// value is false when no such plugin is installed; that is not an error.
	Lookup(ctx context.Context, slug string) (InstalledPlugin, bool, error)

	// List returns every installed plugin the host knows about.
	List(ctx context.Context) ([]InstalledPlugin, error)

	// Activate activates an installed plugin by slug.
	Activate(ctx context.Context, slug string) error

	// Deactivate deactivates an installed plugin by slug.
	Deactivate(ctx context.Context, slug string) error
}

// Installer installs a plugin package into the host environment. The
// download and extraction mechanics belong to the host; the core only
// learns the outcome and re-reads the registry afterwards.
type Installer interface {
	// Install installs the plugin archive for the repository identified by
	// fullName (owner/name) from the given branch. It returns the registry
	// entry for the freshly installed plugin.
	Install(ctx context.Context, fullName, branch string) (InstalledPlugin, error)
}
