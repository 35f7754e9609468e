package cfg

// Settings carries the values the service cannot run without but which do
// not belong on the command line: upstream API keys and the credentials used
// to issue write tokens. Loaded from an optional YAML file.
type Settings struct {
	TMDbAPIKey   string `yaml:"tmdb_api_key"`
	TinifyAPIKey string `yaml:"tinify_api_key"`

	Auth struct {
		Username        string `yaml:"username"`
		AppPasswordHash string `yaml:"app_password_hash"` // bcrypt hash
		Secret          string `yaml:"secret"`
		TokenTTLHours   int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
}

type Cfg struct {
	// Application configuration
	Port         string
	DBPath       string
	MediaDir     string
	SettingsFile string

	// Upstream access
	TMDbAPIKey   string
	TinifyAPIKey string
	HTTPTimeout  int // seconds, bound on all outbound requests

	// Auth
	AuthUsername        string
	AuthAppPasswordHash string
	AuthSecret          string
	TokenTTLHours       int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
