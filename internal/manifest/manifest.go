// Package manifest implements the Manifest Resolver (spec.md §4.1): it
// merges the on-disk manifest, the build manifest, and (when the plugin
// looks installed) distribution metadata into one normalized record.
//
// Grounded on original_source/src/rag2f/core/morpheus/plugin_manifest.py,
// translated into the teacher's gopkg.in/yaml.v3 on-disk parsing style
// (pkg/plugins/manager.go's loadManifest) plus github.com/pelletier/go-toml/v2
// for the build manifest, the Go analogue of pyproject.toml.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
)

// Manifest is the normalized plugin record (spec.md §3 "Manifest").
type Manifest struct {
	Name            string `yaml:"name" toml:"name"`
	Version         string `yaml:"version" toml:"version"`
	Keywords        string `yaml:"keywords" toml:"keywords"`
	Description     string `yaml:"description" toml:"description"`
	AuthorName      string `yaml:"author_name" toml:"author_name"`
	AuthorEmail     string `yaml:"author_email" toml:"author_email"`
	URLs            string `yaml:"urls" toml:"urls"`
	License         string `yaml:"license" toml:"license"`
	MinHostVersion  string `yaml:"min_host_version" toml:"min_host_version"`
	MaxHostVersion  string `yaml:"max_host_version" toml:"max_host_version"`
}

// defaults mirrors plugin_manifest.py's _DEFAULTS (name is excluded: its
// fallback is computed from the plugin directory, not a static sentinel).
var defaults = map[string]string{
	"Version":        "0.0.0",
	"Keywords":       "Unknown",
	"Description":    "No description provided.",
	"AuthorName":     "Unknown",
	"AuthorEmail":    "Unknown",
	"URLs":           "Unknown",
	"License":        "Unknown",
	"MinHostVersion": "Unknown",
	"MaxHostVersion": "Unknown",
}

func defaulted() Manifest {
	return Manifest{
		Version:        defaults["Version"],
		Keywords:       defaults["Keywords"],
		Description:    defaults["Description"],
		AuthorName:     defaults["AuthorName"],
		AuthorEmail:    defaults["AuthorEmail"],
		URLs:           defaults["URLs"],
		License:        defaults["License"],
		MinHostVersion: defaults["MinHostVersion"],
		MaxHostVersion: defaults["MaxHostVersion"],
	}
}

// onDiskManifestName and buildManifestName are the two recognized manifest
// file names (spec.md §4.1 step 1: "prefer the root; if absent there, pick
// the shallowest nested match, tie-broken lexicographically").
const (
	onDiskManifestName = "manifest.yaml"
	buildManifestName  = "plugin.toml"
)

// buildFile mirrors pyproject.toml's narrow slice we actually care about:
// the [plugin] table (mapped onto Manifest) and its `requires` array, whose
// entries feed the version-bounds inference in step 5.
type buildFile struct {
	Plugin struct {
		Manifest
		Requires []string `toml:"requires"`
	} `toml:"plugin"`
}

// DistMetadata is what an installed-package lookup (spec.md §4.1 step 4)
// would supply; the Go analogue of Python's importlib.metadata distribution.
type DistMetadata struct {
	Name         string
	Version      string
	Summary      string
	Author       string
	License      string
	HomepageURL  string
	Requirements []string
	// ManifestPath, if non-empty, points at a manifest.yaml found inside
	// the distribution's installed files; used when the on-disk manifest
	// was absent (step 4 bullet 1).
	ManifestPath string
}

// DistLookup resolves distribution metadata for a plugin id, trying
// hyphen/underscore variants and a files-under-directory fallback scan, the
// way step 4 describes. Returns ok=false on a clean miss.
type DistLookup func(pluginDir, pluginID string) (DistMetadata, bool)

// Resolve runs the full algorithm from spec.md §4.1 against pluginDir.
// pluginCacheRoot is the directory under which "installed" plugins live
// (this module's analogue of site-packages/dist-packages); lookup may be
// nil if no installed-package source is configured.
func Resolve(pluginDir, pluginCacheRoot string, lookup DistLookup) (Manifest, error) {
	onDiskPath, hasOnDisk := findManifest(pluginDir, onDiskManifestName)
	buildPath, hasBuild := findManifest(pluginDir, buildManifestName)

	var onDisk Manifest
	if hasOnDisk {
		var err error
		onDisk, err = parseYAML(onDiskPath)
		if err != nil {
			return Manifest{}, err
		}
	}

	var build buildFile
	var requirementsForBounds []string
	if hasBuild {
		raw, err := os.ReadFile(buildPath)
		if err != nil {
			return Manifest{}, fluxerrors.NewManifestInvalid(buildPath, "read failed", err)
		}
		if err := toml.Unmarshal(raw, &build); err != nil {
			return Manifest{}, fluxerrors.NewManifestInvalid(buildPath, "toml decode failed", err)
		}
		requirementsForBounds = append(requirementsForBounds, build.Plugin.Requires...)
	}

	merged := defaulted()
	if hasOnDisk {
		merged = overrideIfNonEmpty(merged, onDisk, nil)
	}
	if hasBuild {
		// step 3: build manifest overrides the on-disk base only where
		// non-empty, and version bounds are excluded from this policy.
		merged = overrideIfNonEmpty(merged, build.Plugin.Manifest, []string{"MinHostVersion", "MaxHostVersion"})
	}

	// step 4: installed-package metadata, applied only to still-default
	// fields.
	if lookup != nil && isInstalled(pluginDir, pluginCacheRoot) {
		pluginID := filepath.Base(filepath.Clean(pluginDir))
		if dist, ok := lookup(pluginDir, pluginID); ok {
			if !hasOnDisk && dist.ManifestPath != "" {
				var err error
				onDisk, err = parseYAML(dist.ManifestPath)
				if err != nil {
					return Manifest{}, err
				}
				merged = overrideIfNonEmpty(merged, onDisk, nil)
			}
			merged = applyDistMetadata(merged, dist)
			requirementsForBounds = append(requirementsForBounds, dist.Requirements...)
		}
	}

	// step 5: version-bounds inference, applied field-by-field only where
	// the bound is still at its default (i.e. no explicit value reached it
	// from the on-disk manifest).
	merged = inferVersionBounds(merged, requirementsForBounds)

	// step 6: name fallback.
	if merged.Name == "" {
		merged.Name = humanize(filepath.Base(filepath.Clean(pluginDir)))
	}

	return merged, nil
}

func findManifest(pluginDir, name string) (string, bool) {
	root := filepath.Join(pluginDir, name)
	if fileExists(root) {
		return root, true
	}

	var candidates []string
	_ = filepath.Walk(pluginDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Base(path) == name {
			candidates = append(candidates, path)
		}
		return nil
	})
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := depth(candidates[i]), depth(candidates[j])
		if di != dj {
			return di < dj
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0], true
}

func depth(path string) int {
	return strings.Count(filepath.ToSlash(path), "/")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func parseYAML(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fluxerrors.NewManifestInvalid(path, "read failed", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fluxerrors.NewManifestInvalid(path, "yaml decode failed", err)
	}
	return m, nil
}

// overrideIfNonEmpty implements plugin_manifest.py's override_if_non_empty:
// a field in override replaces the corresponding field in base only when
// normalizeStr(override field) is non-empty, skipping any field named in
// exclude.
func overrideIfNonEmpty(base, override Manifest, exclude []string) Manifest {
	skip := map[string]bool{}
	for _, f := range exclude {
		skip[f] = true
	}
	set := func(name string, basePtr *string, overrideVal string) {
		if skip[name] {
			return
		}
		if v := normalizeStr(overrideVal); v != "" {
			*basePtr = v
		}
	}
	set("Name", &base.Name, override.Name)
	set("Version", &base.Version, override.Version)
	set("Keywords", &base.Keywords, override.Keywords)
	set("Description", &base.Description, override.Description)
	set("AuthorName", &base.AuthorName, override.AuthorName)
	set("AuthorEmail", &base.AuthorEmail, override.AuthorEmail)
	set("URLs", &base.URLs, override.URLs)
	set("License", &base.License, override.License)
	set("MinHostVersion", &base.MinHostVersion, override.MinHostVersion)
	set("MaxHostVersion", &base.MaxHostVersion, override.MaxHostVersion)
	return base
}

func applyDistMetadata(base Manifest, dist DistMetadata) Manifest {
	setIfDefault := func(cur *string, defaultVal, val string) {
		if *cur == defaultVal && normalizeStr(val) != "" {
			*cur = normalizeStr(val)
		}
	}
	setIfDefault(&base.Name, "", dist.Name)
	setIfDefault(&base.Version, defaults["Version"], dist.Version)
	setIfDefault(&base.Description, defaults["Description"], dist.Summary)
	setIfDefault(&base.AuthorName, defaults["AuthorName"], dist.Author)
	setIfDefault(&base.License, defaults["License"], dist.License)
	setIfDefault(&base.URLs, defaults["URLs"], dist.HomepageURL)
	return base
}

func normalizeStr(s string) string {
	return strings.TrimSpace(s)
}

func humanize(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func isInstalled(pluginDir, pluginCacheRoot string) bool {
	if pluginCacheRoot == "" {
		return false
	}
	rel, err := filepath.Rel(pluginCacheRoot, pluginDir)
	return err == nil && !strings.HasPrefix(rel, "..")
}

// requirementPattern matches one "HOST_PKG_NAME<op><version>" specifier,
// e.g. "fluxrag>=1.2". In a comma-separated requirement such as
// "fluxrag>=1.2,<2.0", the specifiers after the first carry no package name
// and are matched with the preceding specifier's package name prepended.
var requirementPattern = regexp.MustCompile(`^\s*([A-Za-z0-9_.\-]+)\s*(>=|<=|==|~=|>|<)\s*([A-Za-z0-9_.\-]+)\s*$`)

const hostPackageName = "fluxrag"

// inferVersionBounds applies spec.md §4.1 step 5: scan requirement strings
// of the form HOST_PKG_NAME<specs>; >=/> sets min, <=/< sets max, == sets
// max and leaves min untouched, ~= and unknown operators are ignored with
// a warning. Last-declared wins across multiple matching requirements.
func inferVersionBounds(m Manifest, requirements []string) Manifest {
	minExplicit := m.MinHostVersion != defaults["MinHostVersion"]
	maxExplicit := m.MaxHostVersion != defaults["MaxHostVersion"]

	for _, req := range requirements {
		parts := strings.Split(req, ",")
		pkg := ""
		for _, part := range parts {
			match := requirementPattern.FindStringSubmatch(part)
			if match == nil && pkg != "" {
				match = requirementPattern.FindStringSubmatch(pkg + part)
			}
			if match == nil {
				continue
			}
			var op, ver string
			pkg, op, ver = match[1], match[2], match[3]
			if !strings.EqualFold(pkg, hostPackageName) {
				continue
			}
			switch op {
			case ">=", ">":
				if !minExplicit {
					m.MinHostVersion = ver
				}
			case "<=", "<":
				if !maxExplicit {
					m.MaxHostVersion = ver
				}
			case "==":
				if !maxExplicit {
					m.MaxHostVersion = ver
				}
			case "~=":
				fmt.Fprintf(os.Stderr, "warning: ignoring unsupported version specifier %q for %s\n", part, hostPackageName)
			default:
				fmt.Fprintf(os.Stderr, "warning: ignoring unknown version specifier %q for %s\n", part, hostPackageName)
			}
		}
	}
	return m
}
