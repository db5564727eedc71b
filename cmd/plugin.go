package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fluxrag/fluxrag/internal/core"
	"github.com/fluxrag/fluxrag/internal/manifest"
	"github.com/fluxrag/fluxrag/internal/spock"
)

func newPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Discover, inspect, and activate plugins",
		Long: `Plugin management for the fluxrag host (spec.md §4.3).

Plugins are discovered from installed factories and filesystem directories
(installed wins on a duplicate id), and carry a normalized manifest (§4.1)
resolved from manifest.yaml / plugin.toml.`,
		Example: `  # List discovered plugins
  fluxrag plugin list

  # Show a plugin's resolved manifest and registered hooks
  fluxrag plugin info my-plugin

  # Activate a plugin: resolve its manifest, collect hooks, run its activated hook
  fluxrag plugin activate my-plugin

  # Deactivate a plugin
  fluxrag plugin deactivate my-plugin

  # Discover, activate, then immediately deactivate to sanity-check a plugin
  fluxrag plugin validate my-plugin`,
	}

	cmd.AddCommand(newPluginListCmd())
	cmd.AddCommand(newPluginInfoCmd())
	cmd.AddCommand(newPluginActivateCmd())
	cmd.AddCommand(newPluginDeactivateCmd())
	cmd.AddCommand(newPluginValidateCmd())

	return cmd
}

func newPluginListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins",
		Long: `Discover plugins (installed factories + filesystem directories under
the configured plugin directory) and list each one's id, resolved manifest
preview, and activation status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginList(format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format (table|json)")
	return cmd
}

func newPluginInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <plugin-id>",
		Short: "Show a plugin's resolved manifest and registered hooks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginInfo(args[0])
		},
	}
	return cmd
}

func newPluginActivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <plugin-id>",
		Short: "Activate a plugin",
		Long: `Runs spec.md §4.3's activation sequence: resolve the manifest, call the
dependency installer (which is given no dependency source, so nothing is
installed), collect hooks and lifecycle overrides, assign each hook's
plugin id, run the "activated" override, mark active.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginActivate(args[0])
		},
	}
	return cmd
}

func newPluginDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <plugin-id>",
		Short: "Deactivate a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginDeactivate(args[0])
		},
	}
	return cmd
}

func newPluginValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plugin-id>",
		Short: "Activate then deactivate a plugin to sanity-check it",
		Long: `Runs the full activate/deactivate cycle against a discovered plugin
without leaving it active, surfacing manifest resolution and lifecycle
override failures as typed errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginValidate(args[0])
		},
	}
	return cmd
}

func buildCore() (*core.Core, error) {
	cfg, err := spock.Global()
	if err != nil {
		return nil, err
	}
	return core.New(core.Options{Config: cfg})
}

func runPluginList(format string) error {
	c, err := buildCore()
	if err != nil {
		return err
	}
	if err := c.Loader.Discover(); err != nil {
		return err
	}

	plugins := c.Loader.List()

	type row struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Version     string `json:"version"`
		Description string `json:"description"`
		Active      bool   `json:"active"`
	}
	rows := make([]row, 0, len(plugins))
	for _, p := range plugins {
		m := p.Manifest
		if p.Path != "" && m.Name == "" {
			if resolved, err := manifest.Resolve(p.Path, c.Config.CacheDir, nil); err == nil {
				m = resolved
			}
		}
		rows = append(rows, row{ID: p.ID, Name: m.Name, Version: m.Version, Description: m.Description, Active: p.Active})
	}

	if format == "json" {
		data, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	color.Green("discovered plugins")
	if len(rows) == 0 {
		fmt.Println("no plugins discovered under", c.Config.PluginDir)
		return nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Version", "Active"})
	for _, r := range rows {
		status := "inactive"
		if r.Active {
			status = color.GreenString("active")
		}
		t.AppendRow(table.Row{r.ID, r.Name, r.Version, status})
	}
	fmt.Println(t.Render())
	fmt.Printf("\ntotal plugins: %d\n", len(rows))
	return nil
}

func runPluginInfo(id string) error {
	c, err := buildCore()
	if err != nil {
		return err
	}
	if err := c.Loader.Discover(); err != nil {
		return err
	}
	p, ok := c.Loader.Get(id)
	if !ok {
		return fmt.Errorf("plugin %q not discovered", id)
	}

	m := p.Manifest
	if p.Path != "" && m.Name == "" {
		if resolved, err := manifest.Resolve(p.Path, c.Config.CacheDir, nil); err == nil {
			m = resolved
		}
	}

	color.Green("plugin: %s", p.ID)
	fmt.Printf("Path:        %s\n", p.Path)
	fmt.Printf("Name:        %s\n", m.Name)
	fmt.Printf("Version:     %s\n", m.Version)
	fmt.Printf("Description: %s\n", m.Description)
	fmt.Printf("Author:      %s <%s>\n", m.AuthorName, m.AuthorEmail)
	fmt.Printf("License:     %s\n", m.License)
	fmt.Printf("Host range:  [%s, %s]\n", m.MinHostVersion, m.MaxHostVersion)
	fmt.Printf("Active:      %v\n", p.Active)

	if len(p.Hooks) == 0 {
		fmt.Println("\nno hooks registered (activate the plugin to collect them)")
		return nil
	}
	fmt.Println("\nhooks:")
	for _, h := range p.Hooks {
		fmt.Printf("  - %s (priority %d)\n", h.Name, h.Priority)
	}
	return nil
}

func runPluginActivate(id string) error {
	c, err := buildCore()
	if err != nil {
		return err
	}
	if err := c.Loader.Discover(); err != nil {
		return err
	}
	color.Green("activating plugin: %s", id)
	if err := c.Loader.Activate(context.Background(), id, c); err != nil {
		return err
	}
	p, _ := c.Loader.Get(id)
	for _, h := range p.Hooks {
		c.Dispatcher.Register(h)
	}
	c.Dispatcher.Refresh()
	color.Green("plugin %q activated (%d hooks registered)", id, len(p.Hooks))
	return nil
}

func runPluginDeactivate(id string) error {
	c, err := buildCore()
	if err != nil {
		return err
	}
	if err := c.Loader.Discover(); err != nil {
		return err
	}
	color.Yellow("deactivating plugin: %s", id)
	if err := c.Loader.Deactivate(id, c); err != nil {
		return err
	}
	c.Dispatcher.Unregister(id)
	c.Dispatcher.Refresh()
	color.Green("plugin %q deactivated", id)
	return nil
}

func runPluginValidate(id string) error {
	c, err := buildCore()
	if err != nil {
		return err
	}
	if err := c.Loader.Discover(); err != nil {
		return err
	}

	color.Green("validating plugin: %s", id)

	fmt.Println("[1/3] resolving manifest and activating...")
	if err := c.Loader.Activate(context.Background(), id, c); err != nil {
		return err
	}

	p, _ := c.Loader.Get(id)
	fmt.Printf("[2/3] collected %d hooks, %d lifecycle overrides\n", len(p.Hooks), len(p.Overrides))

	fmt.Println("[3/3] deactivating...")
	if err := c.Loader.Deactivate(id, c); err != nil {
		return err
	}

	color.Green("plugin %q validated successfully", id)
	return nil
}
