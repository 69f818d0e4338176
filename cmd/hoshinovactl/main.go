// SPDX-License-Identifier: MIT

// Package main implements hoshinovactl, the admin CLI for hoshinovad: it
// edits and validates configuration, inspects a running daemon's task list
// over its HTTP API, and signals the daemon to reload or the operator's
// terminal to present the interactive menu.
//
// Usage:
//
//	hoshinovactl <command> [options]
//
// Commands:
//
//	init       Run the interactive configuration wizard
//	validate   Load and validate a configuration file
//	status     Show the running daemon's task list (via its HTTP API)
//	reload     Send SIGHUP to the running daemon
//	menu       Launch the interactive admin menu
//	version    Print version information
//	help       Show this help message
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/HoloArchivists/hoshinova-go/internal/buildinfo"
	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/menu"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
)

var (
	configPath = flag.String("config", "/etc/hoshinova/config.toml", "Path to the TOML configuration file")
	pidFile    = flag.String("pid-file", "/var/run/hoshinova/hoshinovad.pid", "Path to the daemon's pid file")
	apiAddr    = flag.String("api-addr", "127.0.0.1:9090", "Address of the running daemon's HTTP API")
)

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "init":
		err = runInit()
	case "validate":
		err = runValidate()
	case "status":
		err = runStatus()
	case "reload":
		err = runReload()
	case "menu":
		err = menu.CreateMainMenu().Display()
	case "version":
		fmt.Printf("hoshinovactl %s\n", buildinfo.Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "hoshinovactl: %v\n", err)
		os.Exit(1)
	}
}

// runInit walks the operator through building a new configuration file,
// using the same prompt primitives the interactive admin menu is built on.
func runInit() error {
	if _, err := os.Stat(*configPath); err == nil {
		if !menu.Confirm(os.Stdin, os.Stdout, fmt.Sprintf("%s already exists. Overwrite?", *configPath)) {
			return nil
		}
	}

	cfg := &config.Config{}
	cfg.Ytarchive.ExecutablePath = menu.Input(os.Stdin, os.Stdout, "Path to the ytarchive executable")

	for {
		var ch config.ChannelSpec
		ch.ID = menu.Input(os.Stdin, os.Stdout, "Channel id (e.g. UCxxxxxxxx)")
		ch.Name = menu.Input(os.Stdin, os.Stdout, "Channel display name")
		ch.OutPath = menu.Input(os.Stdin, os.Stdout, "Output directory for this channel")
		filterLine := menu.Input(os.Stdin, os.Stdout, "Title filter regexes, comma-separated (blank matches nothing)")
		if filterLine != "" {
			for _, f := range strings.Split(filterLine, ",") {
				ch.Filters = append(ch.Filters, strings.TrimSpace(f))
			}
		}
		ch.Recorder = "ytarchive"
		if menu.Confirm(os.Stdin, os.Stdout, "Use yt-dlp instead of ytarchive for this channel?") {
			ch.Recorder = "yt-dlp"
		}
		cfg.Channel = append(cfg.Channel, ch)

		if !menu.Confirm(os.Stdin, os.Stdout, "Add another channel?") {
			break
		}
	}

	if menu.Confirm(os.Stdin, os.Stdout, "Configure the Discord notifier?") {
		webhook := menu.Input(os.Stdin, os.Stdout, "Discord webhook URL")
		cfg.Notifier = &config.NotifierConfig{Discord: &config.NotifierDiscordConfig{
			WebhookURL: webhook,
			NotifyOn:   []string{"waiting", "recording", "done", "failed"},
		}}
	}

	if menu.Confirm(os.Stdin, os.Stdout, "Enable the HTTP API?") {
		bind := menu.Input(os.Stdin, os.Stdout, "Bind address (e.g. 127.0.0.1:9090)")
		cfg.Webserver = &config.WebserverConfig{BindAddress: bind}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("generated configuration is invalid: %w", err)
	}
	if err := cfg.Save(*configPath); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	fmt.Printf("Wrote %s\n", *configPath)
	return nil
}

func runValidate() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Printf("%s is valid (%d channel(s) configured)\n", *configPath, len(cfg.Channel))
	return nil
}

func runStatus() error {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := httpClient.Get(fmt.Sprintf("http://%s/api/tasks", *apiAddr))
	if err != nil {
		return fmt.Errorf("reach daemon at %s: %w", *apiAddr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	var snapshots []task.TaskSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshots); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if len(snapshots) == 0 {
		fmt.Println("No tasks known to the daemon.")
		return nil
	}
	for _, s := range snapshots {
		fmt.Printf("%-12s %-24s %-10s %s\n", s.Task.VideoID, s.Task.ChannelName, s.Status.State.String(), s.Task.Title)
	}
	return nil
}

// runReload signals the running daemon to reload its configuration by
// reading its pid from pidFile and sending SIGHUP directly, mirroring the
// admin menu's "reload the running daemon" action.
func runReload() error {
	data, err := os.ReadFile(*pidFile)
	if err != nil {
		return fmt.Errorf("read pid file %s: %w", *pidFile, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse pid file %s: %w", *pidFile, err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}
	fmt.Printf("Sent SIGHUP to hoshinovad (pid %d)\n", pid)
	return nil
}

func printUsage() {
	fmt.Println("hoshinovactl - hoshinovad admin CLI")
	fmt.Println()
	fmt.Println("Usage: hoshinovactl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init       Run the interactive configuration wizard")
	fmt.Println("  validate   Load and validate a configuration file")
	fmt.Println("  status     Show the running daemon's task list")
	fmt.Println("  reload     Send SIGHUP to the running daemon")
	fmt.Println("  menu       Launch the interactive admin menu")
	fmt.Println("  version    Print version information")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}
