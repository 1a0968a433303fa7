package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanq16/wirespeed/internal/engine"
	"github.com/tanq16/wirespeed/internal/output"
	"github.com/tanq16/wirespeed/internal/utils"
)

var (
	connections   int
	window        time.Duration
	interval      time.Duration
	duration      time.Duration
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	debug         bool
	urlListFile   string
	headers       []string
)

var WirespeedVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "wirespeed [url]",
	Short:   "Wirespeed measures download bandwidth with concurrent range requests",
	Version: WirespeedVersion,
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		if len(args) == 0 && urlListFile == "" {
			output.PrintError("No URL or URL list provided")
			os.Exit(1)
		}
		if urlListFile != "" && len(args) > 0 {
			output.PrintError("Cannot specify url argument and --urllist together, choose one")
			os.Exit(1)
		}
		if userAgent == "randomize" {
			userAgent = utils.GetRandomUserAgent()
		}
		// Check if proxy URL contains auth
		parsedProxy, err := u.Parse(proxyURL)
		if err == nil && parsedProxy.User != nil && proxyUsername == "" {
			proxyUsername = parsedProxy.User.Username()
			if password, set := parsedProxy.User.Password(); set {
				proxyPassword = password
			}
			// Remove auth from URL to send in clientConfig
			parsedProxy.User = nil
			proxyURL = parsedProxy.String()
		}
		httpClientConfig := utils.HTTPClientConfig{
			Timeout:       timeout,
			KATimeout:     kaTimeout,
			ProxyURL:      proxyURL,
			ProxyUsername: proxyUsername,
			ProxyPassword: proxyPassword,
			UserAgent:     userAgent,
			Headers:       utils.ParseHeaderArgs(headers),
		}

		reporter := output.NewReporter()
		baseCfg := engine.Config{
			Connections:      connections,
			Window:           window,
			Interval:         interval,
			Duration:         duration,
			HTTPClientConfig: httpClientConfig,
			StartFunc:        reporter.Header,
			SampleFunc:       reporter.Tick,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if len(args) > 0 {
			url := args[0]
			if _, err := u.Parse(url); err != nil {
				output.PrintError("Invalid URL format")
				os.Exit(1)
			}
			baseCfg.URL = url
			result, err := engine.Run(ctx, baseCfg)
			if err != nil {
				output.PrintError(fmt.Sprintf("Measurement failed: %v", err))
				os.Exit(1)
			}
			reporter.Summary(result)
			if result.Outcome != engine.AllChunksCompleted {
				os.Exit(1)
			}
			return
		}

		targets, err := utils.ReadTargetList(urlListFile)
		if err != nil {
			output.PrintError("Failed to read URL list file")
			os.Exit(1)
		}
		results, err := engine.RunBatch(ctx, targets, baseCfg)
		failed := err != nil
		for _, result := range results {
			if result == nil {
				continue
			}
			reporter.Summary(result)
			if result.Outcome != engine.AllChunksCompleted {
				failed = true
			}
		}
		if failed {
			fmt.Println()
			output.PrintError("Encountered failed measurement(s)")
			os.Exit(1)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().IntVarP(&connections, "connections", "c", runtime.NumCPU(), "Number of concurrent connections (above 5 enables high-thread-mode)")
	rootCmd.Flags().DurationVarP(&window, "window", "w", utils.DefaultWindow, "Sliding window for the speed average (eg. 10s, 1m)")
	rootCmd.Flags().DurationVarP(&interval, "interval", "i", utils.DefaultInterval, "How often to print a speed reading")
	rootCmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop measuring after this long (0 runs to completion)")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Minute, "Connection timeout (eg. 5s, 10m)")
	rootCmd.Flags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.Flags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent")
	rootCmd.Flags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.Flags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.Flags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.Flags().StringVarP(&urlListFile, "urllist", "l", "", "Path to YAML file containing measurement targets")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")

	// flags without shorthand
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
