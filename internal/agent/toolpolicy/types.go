// Package toolpolicy evaluates an agent's tool allow-list against the
// fixed set of tools the runtime exposes.
package toolpolicy

import "strings"

// Profile is a pre-configured tool access level.
type Profile string

const (
	// ProfileMinimal allows no tools.
	ProfileMinimal Profile = "minimal"
	// ProfileFiles allows the filesystem tool group.
	ProfileFiles Profile = "files"
	// ProfileFull allows every registered tool unless explicitly denied.
	ProfileFull Profile = "full"
)

// Policy defines an agent's tool access rules: a base profile plus explicit
// allow/deny lists. Deny always takes precedence over allow.
type Policy struct {
	Profile Profile  `json:"profile,omitempty" yaml:"profile"`
	Allow   []string `json:"allow,omitempty" yaml:"allow"`
	Deny    []string `json:"deny,omitempty" yaml:"deny"`
}

// NewPolicy creates a policy with the given base profile.
func NewPolicy(profile Profile) *Policy {
	return &Policy{Profile: profile}
}

// WithAllow adds tools to the allow list and returns the policy for chaining.
func (p *Policy) WithAllow(tools ...string) *Policy {
	p.Allow = append(p.Allow, tools...)
	return p
}

// WithDeny adds tools to the deny list and returns the policy for chaining.
func (p *Policy) WithDeny(tools ...string) *Policy {
	p.Deny = append(p.Deny, tools...)
	return p
}

// Merge combines policies in order; later policies' profile wins, allow/deny
// lists accumulate.
func Merge(policies ...*Policy) *Policy {
	result := &Policy{}
	for _, p := range policies {
		if p == nil {
			continue
		}
		if p.Profile != "" {
			result.Profile = p.Profile
		}
		result.Allow = append(result.Allow, p.Allow...)
		result.Deny = append(result.Deny, p.Deny...)
	}
	return result
}

// DefaultGroups are the built-in tool groups referenceable from a policy's
// allow/deny lists as "group:<name>".
var DefaultGroups = map[string][]string{
	"group:files": {"read_file", "write_file", "list_directory", "create_directory", "delete_file", "file_exists"},
	"group:all":   {},
}

// ProfileDefaults defines the default allow list for each profile.
var ProfileDefaults = map[Profile]*Policy{
	ProfileMinimal: {},
	ProfileFiles:   {Allow: []string{"group:files"}},
	ProfileFull:    {},
}

// ToolAliases maps alternative tool names to their canonical form.
var ToolAliases = map[string]string{
	"read":   "read_file",
	"write":  "write_file",
	"ls":     "list_directory",
	"mkdir":  "create_directory",
	"rm":     "delete_file",
	"exists": "file_exists",
}

// NormalizeTool lowercases a tool name and resolves known aliases.
func NormalizeTool(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := ToolAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// NormalizeTools normalizes a list of tool names.
func NormalizeTools(names []string) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		if normalized := NormalizeTool(name); normalized != "" {
			result = append(result, normalized)
		}
	}
	return result
}
