// Package pkginfo models the package information text persisted inside
// every package folder and used to derive the package id.
//
// The text layout ([settings], [requires], [options], [full_settings],
// [full_requires], [full_options], [recipe_hash]) must round-trip
// identically: serialize → deserialize → serialize is a fixed point.
// The narrowed sections feed the package id; the full_* sections record
// the exact configuration the binary was built with.
package pkginfo

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tsukumogami/hako/internal/ref"
)

// FileName is the info file name inside a package folder.
const FileName = "hakoinfo.txt"

// PackageIDUnknown is the sentinel returned when a requirement mode
// needs information (a package revision) that is not available yet.
const PackageIDUnknown = "Package_ID_unknown"

// Requirement identity modes. They control how much of a required
// package's identity is reflected in the consumer's package id.
const (
	SemverMode          = "semver_mode"
	FullVersionMode     = "full_version_mode"
	FullRecipeMode      = "full_recipe_mode"
	FullPackageMode     = "full_package_mode"
	PackageRevisionMode = "package_revision_mode"
	UnrelatedMode       = "unrelated_mode"
)

// RequirementInfo is one requirement's contribution to the package id:
// the full pref it was resolved to, and the narrowed rendering selected
// by the active mode.
type RequirementInfo struct {
	Pref ref.PackageReference
	mode string
}

// SetMode changes the identity mode for this requirement. Recipes narrow
// individual requirements from their package_id hook.
func (r *RequirementInfo) SetMode(mode string) { r.mode = mode }

// Mode returns the active identity mode.
func (r *RequirementInfo) Mode() string { return r.mode }

// indeterminate reports whether the narrowed identity needs a package
// revision that the pref does not carry yet.
func (r *RequirementInfo) indeterminate() bool {
	return r.mode == PackageRevisionMode && r.Pref.Revision == ""
}

// narrowed renders the requirement identity under the active mode.
// Unrelated requirements render empty and are omitted.
func (r *RequirementInfo) narrowed() string {
	rr := r.Pref.Ref
	switch r.mode {
	case UnrelatedMode:
		return ""
	case SemverMode:
		return fmt.Sprintf("%s/%s", rr.Name, semverStable(rr.Version))
	case FullVersionMode:
		return fmt.Sprintf("%s/%s", rr.Name, rr.Version)
	case FullRecipeMode:
		return rr.ClearRev().String()
	case FullPackageMode:
		return rr.ClearRev().String() + ":" + r.Pref.PackageID
	case PackageRevisionMode:
		return rr.String() + ":" + r.Pref.PackageID + "#" + r.Pref.Revision
	default:
		return fmt.Sprintf("%s/%s", rr.Name, semverStable(rr.Version))
	}
}

// semverStable keeps only the major component for stable versions
// (>= 1.0), rendering "1.Y.Z"; pre-1.0 versions are considered unstable
// and contribute in full.
func semverStable(version string) string {
	parts := strings.SplitN(version, ".", 2)
	major := parts[0]
	if major == "" || major == "0" {
		return version
	}
	for _, c := range major {
		if c < '0' || c > '9' {
			return version
		}
	}
	return major + ".Y.Z"
}

// RequirementsInfo is the ordered set of requirement identities: the
// direct requirements (narrowed per mode) and the full closure of
// direct plus indirect prefs.
type RequirementsInfo struct {
	Direct []*RequirementInfo
	Full   []ref.PackageReference
}

// Nodes returns the full closure prefs, the input for a dependent's
// indirect-requirement computation.
func (r *RequirementsInfo) Nodes() []ref.PackageReference {
	out := make([]ref.PackageReference, len(r.Full))
	copy(out, r.Full)
	return out
}

// SetMode applies an identity mode to every direct requirement.
func (r *RequirementsInfo) SetMode(mode string) {
	for _, d := range r.Direct {
		d.SetMode(mode)
	}
}

// Clear marks every requirement unrelated, removing requirements from
// the package id entirely.
func (r *RequirementsInfo) Clear() { r.SetMode(UnrelatedMode) }

// Info is the package information of one binary.
type Info struct {
	Settings     map[string]string
	Options      map[string]string
	Requires     *RequirementsInfo
	FullSettings map[string]string
	FullOptions  map[string]string
	RecipeHash   string
}

// Create builds an Info from a node's frozen configuration. direct and
// indirect are the prefs of the direct requirements and of their
// transitive closures; mode is the default requirement identity mode.
func Create(settings, options map[string]string, direct, indirect []ref.PackageReference, mode string) *Info {
	reqs := &RequirementsInfo{}
	for _, pref := range direct {
		reqs.Direct = append(reqs.Direct, &RequirementInfo{Pref: pref, mode: mode})
		reqs.Full = append(reqs.Full, pref)
	}
	reqs.Full = append(reqs.Full, indirect...)
	sort.Slice(reqs.Full, func(i, j int) bool {
		return reqs.Full[i].String() < reqs.Full[j].String()
	})
	return &Info{
		Settings:     copyMap(settings),
		Options:      copyMap(options),
		Requires:     reqs,
		FullSettings: copyMap(settings),
		FullOptions:  copyMap(options),
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PackageID hashes the narrowed sections into the content-derived
// package identifier. It returns PackageIDUnknown when any requirement
// identity is indeterminate.
func (i *Info) PackageID() string {
	for _, d := range i.Requires.Direct {
		if d.indeterminate() {
			return PackageIDUnknown
		}
	}
	var b strings.Builder
	writeSection(&b, "settings", i.Settings)
	b.WriteString("[requires]\n")
	lines := make([]string, 0, len(i.Requires.Direct))
	for _, d := range i.Requires.Direct {
		if s := d.narrowed(); s != "" {
			lines = append(lines, s)
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		b.WriteString("    " + l + "\n")
	}
	writeSection(&b, "options", i.Options)
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Dumps serializes the full info text.
func (i *Info) Dumps() string {
	var b strings.Builder
	writeSection(&b, "settings", i.Settings)
	b.WriteString("[requires]\n")
	reqLines := make([]string, 0, len(i.Requires.Direct))
	for _, d := range i.Requires.Direct {
		if s := d.narrowed(); s != "" {
			reqLines = append(reqLines, s)
		}
	}
	sort.Strings(reqLines)
	for _, l := range reqLines {
		b.WriteString("    " + l + "\n")
	}
	writeSection(&b, "options", i.Options)
	writeSection(&b, "full_settings", i.FullSettings)
	b.WriteString("[full_requires]\n")
	for _, pref := range i.Requires.Full {
		b.WriteString("    " + pref.String() + "\n")
	}
	writeSection(&b, "full_options", i.FullOptions)
	b.WriteString("[recipe_hash]\n")
	if i.RecipeHash != "" {
		b.WriteString("    " + i.RecipeHash + "\n")
	}
	return b.String()
}

func writeSection(b *strings.Builder, name string, values map[string]string) {
	b.WriteString("[" + name + "]\n")
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "    %s=%s\n", k, values[k])
	}
}

// LoadFromPackage reads the info file stored inside a package folder.
func LoadFromPackage(packageFolder string) (*Info, error) {
	data, err := os.ReadFile(filepath.Join(packageFolder, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read package info: %w", err)
	}
	return Loads(string(data))
}

// SaveToPackage writes the info file inside a package folder.
func (i *Info) SaveToPackage(packageFolder string) error {
	return os.WriteFile(filepath.Join(packageFolder, FileName), []byte(i.Dumps()), 0644)
}

// Loads parses an info text produced by Dumps. Narrowed requirement
// lines are restored verbatim-preserving: the loaded Info dumps back to
// the identical text.
func Loads(text string) (*Info, error) {
	i := &Info{
		Settings:     map[string]string{},
		Options:      map[string]string{},
		FullSettings: map[string]string{},
		FullOptions:  map[string]string{},
		Requires:     &RequirementsInfo{},
	}
	section := ""
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = trimmed[1 : len(trimmed)-1]
			continue
		}
		switch section {
		case "settings":
			if err := parseKV(trimmed, i.Settings); err != nil {
				return nil, err
			}
		case "options":
			if err := parseKV(trimmed, i.Options); err != nil {
				return nil, err
			}
		case "full_settings":
			if err := parseKV(trimmed, i.FullSettings); err != nil {
				return nil, err
			}
		case "full_options":
			if err := parseKV(trimmed, i.FullOptions); err != nil {
				return nil, err
			}
		case "requires":
			req, err := parseNarrowed(trimmed)
			if err != nil {
				return nil, err
			}
			i.Requires.Direct = append(i.Requires.Direct, req)
		case "full_requires":
			pref, err := ref.ParsePackageReference(trimmed)
			if err != nil {
				return nil, fmt.Errorf("invalid full_requires entry: %w", err)
			}
			i.Requires.Full = append(i.Requires.Full, pref)
		case "recipe_hash":
			i.RecipeHash = trimmed
		default:
			return nil, fmt.Errorf("line %q outside any known section", trimmed)
		}
	}
	return i, sc.Err()
}

// parseNarrowed reconstructs a RequirementInfo from its narrowed
// rendering so the round trip is exact.
func parseNarrowed(s string) (*RequirementInfo, error) {
	if idx := strings.Index(s, ":"); idx >= 0 {
		pref, err := ref.ParsePackageReference(s)
		if err != nil {
			return nil, fmt.Errorf("invalid requires entry %q: %w", s, err)
		}
		mode := FullPackageMode
		if pref.Revision != "" || pref.Ref.Revision != "" {
			mode = PackageRevisionMode
		}
		return &RequirementInfo{Pref: pref, mode: mode}, nil
	}
	r, err := ref.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid requires entry %q: %w", s, err)
	}
	mode := FullVersionMode
	if r.User != "" {
		mode = FullRecipeMode
	} else if strings.HasSuffix(r.Version, ".Y.Z") {
		mode = SemverMode
	}
	return &RequirementInfo{Pref: ref.PackageReference{Ref: r}, mode: mode}, nil
}

func parseKV(line string, into map[string]string) error {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return fmt.Errorf("invalid key=value entry %q", line)
	}
	into[line[:idx]] = line[idx+1:]
	return nil
}
