// hos-advice submits a symptom to the advice API and renders the answer,
// nearby hospitals and pharmacies included, as terminal markdown.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"github.com/hos-care/console/internal/advice"
	"github.com/hos-care/console/internal/client"
	"github.com/hos-care/console/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var flags config.Flags
	var loc advice.LocationFlags
	var image, style string
	var width int
	var raw bool

	flagSet := pflag.NewFlagSet("hos-advice", pflag.ContinueOnError)
	flags.AddFlags(flagSet)
	loc.AddFlags(flagSet)
	flagSet.StringVarP(&image, "image", "i", "", "photo of the affected area")
	flagSet.StringVar(&style, "style", "", "glamour style (dark, light, notty); default detects the terminal")
	flagSet.IntVar(&width, "width", 80, "wrap rendered output at this width")
	flagSet.BoolVar(&raw, "json", false, "print the raw JSON response")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	symptom := strings.TrimSpace(strings.Join(flagSet.Args(), " "))
	if symptom == "" {
		return errors.New("describe the symptom as arguments, e.g. hos-advice sore throat and fever")
	}

	location, err := loc.Resolve(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	if err != nil {
		return err
	}

	cfg, err := flags.Load(os.Getenv)
	if err != nil {
		return err
	}
	c := client.NewHTTPClient(cfg.Server.BaseURL, cfg.Credentials(), cfg.Server.Timeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	resp, err := c.Advice(ctx, client.AdviceRequest{
		Symptom:   symptom,
		ImagePath: image,
		Location:  location,
	})
	if err != nil {
		return err
	}

	if raw {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	r, err := advice.NewRenderer(style, width)
	if err != nil {
		return err
	}
	out, err := r.Render(resp)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
