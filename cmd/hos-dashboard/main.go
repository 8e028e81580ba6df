// hos-dashboard is the live operator dashboard: it holds the /ws/logs
// notification channel open, refreshes the aggregate statistics on a timer
// and shows crawl results as they arrive.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/hos-care/console/internal/app"
	"github.com/hos-care/console/internal/client"
	"github.com/hos-care/console/internal/config"
	"github.com/hos-care/console/internal/fakeapi"
	"github.com/hos-care/console/internal/journal"
	"github.com/hos-care/console/internal/live"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var flags config.Flags
	var journalPath string
	var demo, writeConfig bool

	flagSet := pflag.NewFlagSet("hos-dashboard", pflag.ContinueOnError)
	flags.AddFlags(flagSet)
	flagSet.StringVar(&journalPath, "journal", "", "SQLite journal of notices and snapshots (overrides journal.path)")
	flagSet.BoolVar(&demo, "demo", false, "run against a built-in fake API with generated traffic")
	flagSet.BoolVar(&writeConfig, "write-config", false, "write the effective configuration to the config file and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := flags.Load(os.Getenv)
	if err != nil {
		return err
	}
	if flagSet.Changed("journal") {
		cfg.Journal.Path = journalPath
	}

	if writeConfig {
		path := flags.ConfigPath
		if path == "" {
			if path, err = config.Path(); err != nil {
				return err
			}
		}
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(os.Stderr, "config written to %s\n", path)
		return nil
	}

	if cfg.Log.File != "" {
		f, err := tea.LogToFile(cfg.Log.File, "hos")
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if demo {
		baseURL, err := startDemo(ctx)
		if err != nil {
			return err
		}
		cfg.Server.BaseURL = baseURL
		cfg.Server.Token, cfg.Server.User, cfg.Server.Password = "", "", ""
	}

	wsURL, err := client.WebSocketURL(cfg.Server.BaseURL)
	if err != nil {
		return err
	}
	creds := cfg.Credentials()
	httpClient := client.NewHTTPClient(cfg.Server.BaseURL, creds, cfg.Server.Timeout)
	dialer := client.NewWSDialer(wsURL, creds)
	dialer.ReadTimeout = 2 * cfg.Live.KeepAliveInterval

	var rec app.Recorder
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		rec = j
	}

	var program *tea.Program
	session, err := live.New(live.Options{
		Dial: func(ctx context.Context, onMessage func([]byte), onClose func(error)) (live.Channel, error) {
			conn, err := dialer.Dial(ctx, onMessage, onClose)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		Source:            httpClient,
		Handler:           app.NewHandler(func(msg tea.Msg) { program.Send(msg) }),
		ReconnectDelay:    cfg.Live.ReconnectDelay,
		KeepAliveInterval: cfg.Live.KeepAliveInterval,
		RefreshInterval:   cfg.Live.RefreshInterval,
		FetchTimeout:      cfg.Server.Timeout,
		RecentLogs:        cfg.Live.RecentLogs,
	})
	if err != nil {
		return err
	}

	model := app.New(app.Options{
		Session:        session,
		Journal:        rec,
		Logs:           httpClient,
		Endpoint:       wsURL,
		ReconnectDelay: cfg.Live.ReconnectDelay,
		Retention:      cfg.Journal.Retention,
	})
	program = tea.NewProgram(model, tea.WithAltScreen())

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	log.Printf("dashboard: watching %s", wsURL)
	_, err = program.Run()

	// Teardown before the journal closes.
	session.Close()
	<-done
	return err
}

// startDemo serves a fake API with generated traffic on a loopback port
// until ctx ends.
func startDemo(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	api := fakeapi.NewServer(fakeapi.Options{RAGPassages: 2480, PlaywrightEnabled: true})
	gen := fakeapi.NewGenerator(api, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), 2*time.Second)
	gen.Seed(40, time.Now())

	srv := &http.Server{Handler: api.Handler()}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("demo: serve: %v", err)
		}
	}()
	go gen.Run(ctx)
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Printf("demo: fake API on %s", ln.Addr())
	return "http://" + ln.Addr().String(), nil
}
