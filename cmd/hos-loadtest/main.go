// hos-loadtest runs a staged smoke load against the API: health for every
// virtual user, plus the admin log and stats endpoints when credentials
// are configured.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"github.com/hos-care/console/internal/client"
	"github.com/hos-care/console/internal/config"
	"github.com/hos-care/console/internal/loadtest"
)

func main() {
	failed, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(3)
	}
}

func run() (bool, error) {
	var flags config.Flags
	var stagesFlag string
	var think time.Duration

	flagSet := pflag.NewFlagSet("hos-loadtest", pflag.ContinueOnError)
	flags.AddFlags(flagSet)
	flagSet.StringVar(&stagesFlag, "stages", "10s:5,20s:10,10s:0", "ramp as duration:target pairs")
	flagSet.DurationVar(&think, "think", time.Second, "pause at the end of each iteration")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return false, nil
		}
		return false, err
	}

	stages, err := loadtest.ParseStages(stagesFlag)
	if err != nil {
		return false, err
	}
	cfg, err := flags.Load(os.Getenv)
	if err != nil {
		return false, err
	}

	admin := cfg.HasAdmin()
	if !admin {
		log.Printf("loadtest: no admin credentials, running health checks only")
	}
	log.Printf("loadtest: %s for %s, peak %d VUs",
		cfg.Server.BaseURL, loadtest.TotalDuration(stages), loadtest.PeakTarget(stages))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, err := loadtest.Run(ctx, loadtest.Options{
		Client: client.NewHTTPClient(cfg.Server.BaseURL, cfg.Credentials(), cfg.Server.Timeout),
		Admin:  admin,
		Stages: stages,
		Think:  think,
	})
	if err != nil {
		return false, err
	}
	if _, err := rep.WriteTo(os.Stdout); err != nil {
		return false, err
	}
	return rep.Failed(), nil
}
