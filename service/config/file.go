package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	API struct {
		BaseURL        string `yaml:"base_url" env:"API_BASE_URL"`
		RequestTimeout int    `yaml:"request_timeout" env:"API_REQUEST_TIMEOUT"`
	} `yaml:"api"`

	ModeMaxShutdownTime int `yaml:"mode_max_shutdown_time" env:"MODE_MAX_SHUTDOWN_TIME"`

	Stream StreamParameters `yaml:"stream"`
	Lists  ListLimits       `yaml:"lists"`
	Log    LogParameters    `yaml:"log"`
	Auth   AuthParameters   `yaml:"auth"`

	Panel struct {
		Addr    string   `yaml:"addr" env:"PANEL_ADDR"`
		Origins []string `yaml:"origins" env:"PANEL_ORIGINS" envSeparator:","`
	} `yaml:"panel"`
}

type fileService struct {
	cfg fileConfig
}

// NewFile reads the YAML file at path on top of the hardcoded defaults and then
// applies environment overrides. An empty path skips the file.
func NewFile(path string) (IService, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Errorf("reading config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, xerrors.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, xerrors.Errorf("parsing config env: %w", err)
	}

	return &fileService{cfg: cfg}, nil
}

func defaults() fileConfig {
	hc := NewHardCoded()

	cfg := fileConfig{}
	cfg.API.BaseURL = hc.GetAPIBaseURL()
	cfg.API.RequestTimeout = hc.GetRequestTimeout()
	cfg.ModeMaxShutdownTime = hc.GetModeMaxShutdownTime()
	cfg.Stream = hc.GetStreamParameters()
	cfg.Lists = hc.GetListLimits()
	cfg.Log = hc.GetLogParameters()
	cfg.Auth = hc.GetAuthParameters()
	cfg.Panel.Addr = hc.GetPanelAddr()
	cfg.Panel.Origins = hc.GetPanelOrigins()
	return cfg
}

func (svc *fileService) GetAPIBaseURL() string {
	return svc.cfg.API.BaseURL
}

func (svc *fileService) GetRequestTimeout() int {
	return svc.cfg.API.RequestTimeout
}

func (svc *fileService) GetModeMaxShutdownTime() int {
	return svc.cfg.ModeMaxShutdownTime
}

func (svc *fileService) GetStreamParameters() StreamParameters {
	return svc.cfg.Stream
}

func (svc *fileService) GetListLimits() ListLimits {
	return svc.cfg.Lists
}

func (svc *fileService) GetLogParameters() LogParameters {
	return svc.cfg.Log
}

func (svc *fileService) GetAuthParameters() AuthParameters {
	return svc.cfg.Auth
}

func (svc *fileService) GetPanelAddr() string {
	return svc.cfg.Panel.Addr
}

func (svc *fileService) GetPanelOrigins() []string {
	return svc.cfg.Panel.Origins
}
