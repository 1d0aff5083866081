package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/engine"
	"github.com/tanq16/vidgrab/internal/utils"
)

var (
	connections   int
	workers       int
	chunkSize     int64
	jobTimeout    time.Duration
	httpTimeout   time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	awsProfile    string
	debug         bool
	logFile       string
)

var VidgrabVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "vidgrab",
	Short:   "vidgrab downloads videos over HTTP with parallel byte-range fetching",
	Version: VidgrabVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return utils.InitLogger(debug, logFile)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&connections, "connections", "c", utils.DefaultConnections, "Number of concurrent range requests per download (above 8 enables high-thread-mode)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 1, "Number of downloads to run in parallel")
	rootCmd.PersistentFlags().Int64Var(&chunkSize, "chunk-size", utils.DefaultChunkSize, "Bytes per range request")
	rootCmd.PersistentFlags().DurationVar(&jobTimeout, "timeout", 0, "Deadline for each download, 0 for none (eg. 10m)")
	rootCmd.PersistentFlags().DurationVar(&httpTimeout, "http-timeout", 0, "Client timeout for each request, 0 for none (eg. 30s)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Referer: https://example.com'); can be specified multiple times")
	rootCmd.PersistentFlags().StringVar(&awsProfile, "profile", "", "AWS profile for s3:// destinations")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	rootCmd.AddCommand(newHTTPCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())
}

func buildHTTPConfig() utils.HTTPClientConfig {
	agent := userAgent
	if agent == "randomize" {
		agent = utils.GetRandomUserAgent()
	}
	proxy, username, password := proxyURL, proxyUsername, proxyPassword
	// credentials embedded in the proxy URL win unless given explicitly
	parsedProxy, err := u.Parse(proxy)
	if err == nil && parsedProxy.User != nil && username == "" {
		username = parsedProxy.User.Username()
		if pass, set := parsedProxy.User.Password(); set {
			password = pass
		}
		parsedProxy.User = nil
		proxy = parsedProxy.String()
	}
	return utils.HTTPClientConfig{
		Timeout:       httpTimeout,
		KATimeout:     kaTimeout,
		ProxyURL:      proxy,
		ProxyUsername: username,
		ProxyPassword: password,
		UserAgent:     agent,
		Headers:       utils.ParseHeaderArgs(headers),
	}
}

func newJob(link, dest, prefix, ext, strategy string, cfg utils.HTTPClientConfig) (utils.VideoJob, error) {
	parsed, err := u.Parse(link)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return utils.VideoJob{}, fmt.Errorf("invalid URL %q", link)
	}
	if !engine.ValidMode(strategy) {
		return utils.VideoJob{}, fmt.Errorf("invalid strategy %q (auto, sequential, parallel)", strategy)
	}
	return utils.VideoJob{
		URL:              link,
		Dest:             dest,
		Prefix:           prefix,
		Ext:              ext,
		Strategy:         strategy,
		Connections:      connections,
		ChunkSize:        chunkSize,
		Timeout:          jobTimeout,
		Profile:          awsProfile,
		HTTPClientConfig: cfg,
	}, nil
}
