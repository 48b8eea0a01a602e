package config

import "time"

type ProbeConfig interface {
	GetProbeFastTimeout() time.Duration
	GetProbeFullTimeout() time.Duration
	GetProbeConcurrency() int
	GetProbeEndpointsFile() string
}

type Probe struct {
	ProbeFastTimeout   time.Duration `split_words:"true"`
	ProbeFullTimeout   time.Duration `split_words:"true"`
	ProbeConcurrency   int           `split_words:"true"`
	ProbeEndpointsFile string        `split_words:"true"`
}

var _ ProbeConfig = Probe{}

const minProbeTimeout = 500 * time.Millisecond

// GetProbeFastTimeout is the per-request limit of a fast test, at least 500ms.
func (p Probe) GetProbeFastTimeout() time.Duration {
	return clampProbeTimeout(p.ProbeFastTimeout, 3*time.Second)
}

// GetProbeFullTimeout is the per-request limit of a full test, at least 500ms.
func (p Probe) GetProbeFullTimeout() time.Duration {
	return clampProbeTimeout(p.ProbeFullTimeout, 10*time.Second)
}

func clampProbeTimeout(d, fallback time.Duration) time.Duration {
	switch {
	case d <= 0:
		return fallback
	case d < minProbeTimeout:
		return minProbeTimeout
	}
	return d
}

func (p Probe) GetProbeConcurrency() int {
	if p.ProbeConcurrency < 1 {
		return 1
	}
	return p.ProbeConcurrency
}

// GetProbeEndpointsFile names a YAML endpoint list; empty means the built-in list.
func (p Probe) GetProbeEndpointsFile() string {
	return p.ProbeEndpointsFile
}

type StoreConfig interface {
	GetTokenStore() string
	GetTokenStorePath() string
	GetRedisAddr() string
	GetRedisKey() string
}

type Store struct {
	TokenStore     string `split_words:"true"`
	TokenStorePath string `split_words:"true"`
	RedisAddr      string `split_words:"true"`
	RedisKey       string `split_words:"true"`
}

var _ StoreConfig = Store{}

// GetTokenStore is either "file" or "redis".
func (s Store) GetTokenStore() string {
	return s.TokenStore
}

func (s Store) GetTokenStorePath() string {
	return s.TokenStorePath
}

func (s Store) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Store) GetRedisKey() string {
	return s.RedisKey
}
