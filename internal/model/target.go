package model

// Target is a monitored project. Log collection and analysis run
// independently per target.
type Target struct {
	Name       string            `yaml:"name" json:"name"`
	Provider   string            `yaml:"provider" json:"provider"` // connector provider, e.g. "vercel"
	Project    string            `yaml:"project" json:"project"`
	Service    string            `yaml:"service,omitempty" json:"service,omitempty"` // overrides the provider's service id
	APIKey     string            `yaml:"api_key,omitempty" json:"-"`
	Endpoint   string            `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Repository string            `yaml:"repository,omitempty" json:"repository,omitempty"` // "owner/repo" for issues
	Labels     []string          `yaml:"labels,omitempty" json:"labels,omitempty"`
	Extra      map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// Label returns the display name of the target, falling back to the project id.
func (t Target) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Project
}
