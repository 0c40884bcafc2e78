package config

type LogParameters struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"LOG_COMPRESS"`
	Color      bool   `yaml:"color" env:"LOG_COLOR"`
}

// AuthParameters describe the identity provider used by the sign-in redirect flow.
type AuthParameters struct {
	Issuer                string   `yaml:"issuer" env:"AUTH_ISSUER"`
	ClientID              string   `yaml:"client_id" env:"AUTH_CLIENT_ID"`
	AuthorizationEndpoint string   `yaml:"authorization_endpoint" env:"AUTH_AUTHORIZATION_ENDPOINT"`
	EndSessionEndpoint    string   `yaml:"end_session_endpoint" env:"AUTH_END_SESSION_ENDPOINT"`
	RedirectURI           string   `yaml:"redirect_uri" env:"AUTH_REDIRECT_URI"`
	PostLogoutRedirectURI string   `yaml:"post_logout_redirect_uri" env:"AUTH_POST_LOGOUT_REDIRECT_URI"`
	Scopes                []string `yaml:"scopes" env:"AUTH_SCOPES" envSeparator:" "`
	AccessToken           string   `yaml:"access_token" env:"AUTH_ACCESS_TOKEN"`
}

type StreamParameters struct {
	QueueSize           int     `yaml:"queue_size" env:"STREAM_QUEUE_SIZE"`
	MaxEventSize        int     `yaml:"max_event_size" env:"STREAM_MAX_EVENT_SIZE"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"STREAM_CONFIDENCE_THRESHOLD"`
	FPS                 int     `yaml:"fps" env:"STREAM_FPS"`
}

type ListLimits struct {
	Cameras int `yaml:"cameras" env:"LIST_LIMIT_CAMERAS"`
	Events  int `yaml:"events" env:"LIST_LIMIT_EVENTS"`
	Users   int `yaml:"users" env:"LIST_LIMIT_USERS"`
}

type IService interface {
	GetAPIBaseURL() string
	GetRequestTimeout() int
	GetModeMaxShutdownTime() int
	GetStreamParameters() StreamParameters
	GetListLimits() ListLimits
	GetLogParameters() LogParameters
	GetAuthParameters() AuthParameters
	GetPanelAddr() string
	GetPanelOrigins() []string
}
