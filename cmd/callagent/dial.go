package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-agent/internal/config"
	"call-agent/internal/script"
	"call-agent/internal/session"
	"call-agent/pkg/logger"

	"github.com/spf13/cobra"
)

type dialFlags struct {
	to       string
	brief    script.Brief
	script   string
	voice    string
	language string
	record   bool
}

var dialOpts dialFlags

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Place one call and follow it until it settles",
	Long: `Generate a script from the brief (or use --script as is), place the call and
print every status change until the call completes, fails or is not answered.

Example:
  callagent dial --to +14155550123 --name Jordan --goal "Book a demo" --product "Nimbus CRM"
  callagent dial --to +14155550123 --script "Agent: Hi Jordan, this is a reminder..."`,
	RunE: runDial,
}

func init() {
	f := dialCmd.Flags()
	f.StringVar(&dialOpts.to, "to", "", "Destination number (E.164)")
	f.StringVar(&dialOpts.brief.CustomerName, "name", "", "Customer name")
	f.StringVar(&dialOpts.brief.Goal, "goal", "", "Goal of the call")
	f.StringVar(&dialOpts.brief.Product, "product", "", "Product or service")
	f.StringVar(&dialOpts.brief.Tone, "tone", "", "Tone of voice (default professional and upbeat)")
	f.StringVar(&dialOpts.brief.Notes, "notes", "", "Extra notes for the script")
	f.StringVar(&dialOpts.script, "script", "", "Use this script instead of generating one; OPENAI_API_KEY is then not needed")
	f.StringVar(&dialOpts.voice, "voice", "", "Text-to-speech voice")
	f.StringVar(&dialOpts.language, "language", "", "Language tag")
	f.BoolVar(&dialOpts.record, "record", false, "Record the call")
	dialCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(dialCmd)
}

func runDial(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	load := config.Load
	if dialOpts.script != "" {
		load = config.LoadWithoutScripts
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	log := logger.NewTo(cfg.App.Env, os.Stderr)

	a, err := buildApp(ctx, cfg, log, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	return dial(ctx, a.session, dialOpts, cmd.OutOrStdout())
}

// dial drives one session from script to settled call and prints the
// timeline to out.
func dial(ctx context.Context, sess *session.Session, opts dialFlags, out io.Writer) error {
	if opts.script != "" {
		sess.SetScript(opts.script)
	} else if err := sess.GenerateScript(ctx, opts.brief); err != nil {
		return errors.New(sess.Snapshot().ScriptError)
	}
	fmt.Fprintf(out, "Script:\n%s\n\n", sess.Snapshot().Script)

	snaps, unsubscribe := sess.Subscribe(16)
	defer unsubscribe()

	h, err := sess.StartCall(ctx, session.CallOptions{
		To:       opts.to,
		Voice:    opts.voice,
		Language: opts.language,
		Record:   opts.record,
	})
	if err != nil {
		return errors.New(sess.Snapshot().CallError)
	}
	fmt.Fprintf(out, "Call %s  %s -> %s\n", h.SID, h.From, h.To)

	printed := 0
	warned := false
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "Interrupted; the call itself is not cancelled.")
			return ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if snap.Handle == nil || snap.Handle.SID != h.SID {
				continue
			}
			for ; printed < len(snap.Timeline); printed++ {
				e := snap.Timeline[printed]
				fmt.Fprintf(out, "%s  %s\n", e.At.Format(time.TimeOnly), e.Status)
			}
			if snap.StatusWarning != "" && !warned {
				fmt.Fprintln(out, snap.StatusWarning)
			}
			warned = snap.StatusWarning != ""
			if snap.Phase == session.PhaseSettled {
				return nil
			}
		}
	}
}
