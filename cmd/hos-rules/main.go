// hos-rules shows, edits, backs up and restores the server's
// over-the-counter rules document. Input files may carry comments and
// trailing commas; they are validated locally before anything is sent.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/hos-care/console/internal/client"
	"github.com/hos-care/console/internal/config"
	"github.com/hos-care/console/internal/rules"
)

const usage = `Usage: hos-rules [flags] <command> [file]

Commands:
  show            print the current rules
  check FILE      validate FILE without sending it
  save FILE       validate FILE and replace the server rules ("-" reads stdin)
  backup FILE     write the current rules to FILE
  restore FILE    validate FILE and replace the server rules

Flags:
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var verr *rules.ValidationError
		if errors.As(err, &verr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	var flags config.Flags

	flagSet := pflag.NewFlagSet("hos-rules", pflag.ContinueOnError)
	flags.AddFlags(flagSet)
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	args := flagSet.Args()
	if len(args) == 0 {
		flagSet.Usage()
		return errors.New("missing command")
	}
	cmd, args := args[0], args[1:]

	file := ""
	switch cmd {
	case "show":
		if len(args) != 0 {
			return errors.New("show takes no arguments")
		}
	case "check", "save", "backup", "restore":
		if len(args) != 1 {
			return fmt.Errorf("%s needs exactly one file", cmd)
		}
		file = args[0]
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	if cmd == "check" {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if _, err := rules.Parse(data); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		fmt.Println("ok")
		return nil
	}

	cfg, err := flags.Load(os.Getenv)
	if err != nil {
		return err
	}
	editor := rules.NewEditor(client.NewHTTPClient(cfg.Server.BaseURL, cfg.Credentials(), cfg.Server.Timeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch cmd {
	case "show":
		text, err := editor.Load(ctx)
		if err != nil {
			return err
		}
		fmt.Print(text)
	case "save":
		var data []byte
		if file == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return err
		}
		if err := editor.Save(ctx, data); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "rules saved")
	case "backup":
		if err := editor.Backup(ctx, file); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "rules written to %s\n", file)
	case "restore":
		if err := editor.Restore(ctx, file); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "rules restored from %s\n", file)
	}
	return nil
}
