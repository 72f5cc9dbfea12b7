package config

import "github.com/atu-ide/bizbridge/internal/menu"

// Config is the root configuration structure
type Config struct {
	Transport TransportConfig `yaml:"transport" json:"transport"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	Locale    LocaleConfig    `yaml:"locale" json:"locale"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Menus     []menu.Item     `yaml:"menus,omitempty" json:"menus,omitempty"`

	// Output picks a response format per service name: table, object or json
	Output map[string]string `yaml:"output,omitempty" json:"output,omitempty"`
}

// Response formats accepted in Output
const (
	FormatTable  = "table"
	FormatObject = "object"
	FormatJSON   = "json"
)

// TransportConfig selects the channel to the backend
type TransportConfig struct {
	// Kind is "unix" or "websocket"
	Kind            string `yaml:"kind" json:"kind"`
	Socket          string `yaml:"socket,omitempty" json:"socket,omitempty"`
	URL             string `yaml:"url,omitempty" json:"url,omitempty"`
	ConnectAttempts int    `yaml:"connectAttempts,omitempty" json:"connectAttempts,omitempty"`
	DialTimeout     string `yaml:"dialTimeout,omitempty" json:"dialTimeout,omitempty"` // Go duration, e.g. "5s"
}

// SessionConfig fills request bodies that do not set these fields
type SessionConfig struct {
	ProjectID      string `yaml:"projectId" json:"projectId"`
	SolutionID     string `yaml:"solutionId,omitempty" json:"solutionId,omitempty"`
	Username       string `yaml:"username,omitempty" json:"username,omitempty"`
	RequestTimeout string `yaml:"requestTimeout,omitempty" json:"requestTimeout,omitempty"` // empty waits forever
}

// LocaleConfig drives description key localization
type LocaleConfig struct {
	Language string `yaml:"language,omitempty" json:"language,omitempty"` // BCP 47 tag
	Bundles  string `yaml:"bundles,omitempty" json:"bundles,omitempty"`   // directory of <locale>.yaml files
	Watch    bool   `yaml:"watch,omitempty" json:"watch,omitempty"`       // reload bundles on change
}

// MetricsConfig exposes Prometheus metrics when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"`
}
