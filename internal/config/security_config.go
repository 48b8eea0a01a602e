package config

import "time"

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetMaxSessionAge() time.Duration
}

type Security struct {
	RequirePKCE     bool          `split_words:"true"`
	SessionLifetime time.Duration `split_words:"true"`
}

var _ SecurityConfig = Security{}

func (s Security) GetRequirePKCE() bool {
	return s.RequirePKCE
}

// GetMaxSessionAge is how long an authorization session may wait for its callback.
func (s Security) GetMaxSessionAge() time.Duration {
	return s.SessionLifetime
}
