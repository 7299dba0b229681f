package config

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.quotio/config.yaml"
	SourceProject Source = ".quotio/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// Resolved is one effective setting and the layer that supplied it.
type Resolved struct {
	Key    string `json:"key" yaml:"key"`
	Value  any    `json:"value" yaml:"value"`
	Source Source `json:"source" yaml:"source"`
}

type layer struct {
	cfg    *Config
	source Source
}

// field reads one setting from a layer; ok is false when the layer leaves it unset.
type field struct {
	key string
	get func(*Config) (value any, ok bool)
}

func strField(key string, get func(*Config) string) field {
	return field{key: key, get: func(c *Config) (any, bool) {
		v := get(c)
		return v, v != ""
	}}
}

func boolField(key string, get func(*Config) *bool) field {
	return field{key: key, get: func(c *Config) (any, bool) {
		p := get(c)
		if p == nil {
			return nil, false
		}
		return *p, true
	}}
}

var fields = []field{
	strField("output", func(c *Config) string { return c.Output }),
	{key: "verbose", get: func(c *Config) (any, bool) { return c.Verbose, c.Verbose }},
	strField("review.cli_command", func(c *Config) string { return c.Review.CLICommand }),
	{key: "review.max_workers", get: func(c *Config) (any, bool) { return c.Review.MaxWorkers, c.Review.MaxWorkers != 0 }},
	strField("review.worker_timeout", func(c *Config) string { return c.Review.WorkerTimeout }),
	strField("review.aggregate_timeout", func(c *Config) string { return c.Review.AggregateTimeout }),
	strField("review.fix_timeout", func(c *Config) string { return c.Review.FixTimeout }),
	strField("review.grace_period", func(c *Config) string { return c.Review.GracePeriod }),
	strField("review.model", func(c *Config) string { return c.Review.Model }),
	boolField("review.full_auto", func(c *Config) *bool { return c.Review.FullAuto }),
	boolField("review.skip_git_repo_check", func(c *Config) *bool { return c.Review.SkipGitRepoCheck }),
	boolField("review.ephemeral", func(c *Config) *bool { return c.Review.Ephemeral }),
	strField("server.addr", func(c *Config) string { return c.Server.Addr }),
}

// Resolve returns every setting with its source, in a stable order.
// Uses precedence chain: flags > env > project > home > defaults.
// Unreadable layers are skipped.
func Resolve(projectPath string, flagOverrides *Config) []Resolved {
	homeConfig, _ := loadFromPath(homeConfigPath())
	projectConfig, _ := loadFromPath(resolveProjectPath(projectPath))
	envConfig, _ := fromEnv()

	layers := []layer{
		{Default(), SourceDefault},
		{homeConfig, SourceHome},
		{projectConfig, SourceProject},
		{envConfig, SourceEnv},
		{flagOverrides, SourceFlag},
	}

	out := make([]Resolved, 0, len(fields))
	for _, f := range fields {
		r := Resolved{Key: f.key, Source: SourceDefault}
		r.Value, _ = f.get(layers[0].cfg)
		for _, l := range layers[1:] {
			if l.cfg == nil {
				continue
			}
			if v, ok := f.get(l.cfg); ok {
				r.Value, r.Source = v, l.source
			}
		}
		out = append(out, r)
	}
	return out
}
