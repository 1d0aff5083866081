package utils

import (
	"net/http"
	"time"
)

type HTTPClientConfig struct {
	Timeout        time.Duration // zero disables the client-level timeout
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Headers        map[string]string
	HighThreadMode bool // advanced socket options for high concurrency
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// VideoJob is one unit of work handed to the scheduler by the CLI.
type VideoJob struct {
	URL              string
	Dest             string
	Prefix           string
	Ext              string
	Strategy         string
	Connections      int
	ChunkSize        int64
	Timeout          time.Duration
	Profile          string
	HTTPClientConfig HTTPClientConfig
}

type BatchEntry struct {
	Link     string `yaml:"link"`
	Dest     string `yaml:"dest,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Ext      string `yaml:"ext,omitempty"`
	Strategy string `yaml:"strategy,omitempty"`
}
