package config

import (
	"fmt"
	"strings"
	"time"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBaseURL() string
	GetSiteURL() string
	GetDataFolder() string
	GetWorkflowRateLimit() int
	GetWorkflowTimeout() time.Duration
}

type EnvVars struct {
	Port       string `split_words:"true"`
	AppName    string `split_words:"true"`
	Env        string `split_words:"true"`
	LogLevel   string `split_words:"true"`
	BaseURL    string `split_words:"true"`
	SiteURL    string `split_words:"true"`
	DataFolder string `split_words:"true"`
	// RateLimit is the provider API budget in requests per minute.
	RateLimit       int           `split_words:"true"`
	WorkflowTimeout time.Duration `split_words:"true"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetBaseURL returns the provider API base URL without a trailing slash.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.BaseURL, "/")
}

// GetSiteURL is the provider's public web root, probed as the root endpoint.
func (e EnvVars) GetSiteURL() string {
	return e.SiteURL
}

func (e EnvVars) GetDataFolder() string {
	return e.DataFolder
}

func (e EnvVars) GetWorkflowRateLimit() int {
	return e.RateLimit
}

// GetWorkflowTimeout bounds one workflow run, clamped to 1s-10m.
func (e EnvVars) GetWorkflowTimeout() time.Duration {
	switch {
	case e.WorkflowTimeout <= 0:
		return 60 * time.Second
	case e.WorkflowTimeout < time.Second:
		return time.Second
	case e.WorkflowTimeout > 10*time.Minute:
		return 10 * time.Minute
	}
	return e.WorkflowTimeout
}
