package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/fluxrag/fluxrag/cmd"
	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		handleError(err)
		os.Exit(1)
	}
}

// handleError renders the system-error taxonomy from spec.md §7 with
// operator-facing suggestions, the way the teacher's main.go switches on
// its own typed error hierarchy rather than printing a bare Go error.
func handleError(err error) {
	switch e := err.(type) {
	case *fluxerrors.ManifestInvalid:
		handleManifestInvalid(e)
	case *fluxerrors.PluginLoadFailed:
		handlePluginLoadFailed(e)
	case *fluxerrors.PluginNotFound:
		handlePluginNotFound(e)
	case *fluxerrors.BackendFailure:
		handleBackendFailure(e)
	default:
		color.Red("error: %v", err)
	}
}

func handleManifestInvalid(err *fluxerrors.ManifestInvalid) {
	color.Red("manifest invalid")
	fmt.Printf("File:  %s\n", err.FilePath)
	fmt.Printf("Error: %s\n", err.Error())
	fmt.Println()
	color.Yellow("suggestions:")
	fmt.Println("- check the manifest.yaml / plugin.toml syntax")
	fmt.Println("- run: fluxrag plugin info <plugin-id> to see what was resolved so far")
}

func handlePluginLoadFailed(err *fluxerrors.PluginLoadFailed) {
	color.Red("plugin load failed: %s", err.PluginID)
	fmt.Printf("Error: %s\n", err.Error())
	fmt.Println()
	color.Yellow("suggestions:")
	fmt.Println("- run: fluxrag plugin validate", err.PluginID)
	fmt.Println("- check the plugin's declared dependencies install cleanly")
}

func handlePluginNotFound(err *fluxerrors.PluginNotFound) {
	color.Red("plugin not found: %s", err.PluginID)
	fmt.Println()
	color.Yellow("suggestions:")
	fmt.Println("- run: fluxrag plugin list to see discovered plugin ids")
}

func handleBackendFailure(err *fluxerrors.BackendFailure) {
	color.Red("backend failure: %s", err.Backend)
	fmt.Printf("Error: %s\n", err.Error())
	fmt.Println()
	color.Yellow("suggestions:")
	fmt.Println("- check the configured store/queue backend is reachable")
}
