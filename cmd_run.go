package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"packscan/processor"
	"packscan/retention"
	"packscan/server"
)

const (
	tempCleanupInterval = 15 * time.Minute
	oldCleanupInterval  = 6 * time.Hour
)

var (
	noStdin    bool
	listenAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Read codes from the scanner on stdin (default)",
	Long: `Reads one code per line from stdin. Keyboard-wedge scanners type the code
followed by Enter, so the terminal running packscan must have focus.

Console commands:
  /status   show the current packer and session
  /end      close the current session`,
	RunE: runScanner,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scanner loop together with the HTTP API",
	Long: `Runs the stdin scanner loop, the HTTP API, periodic cleanup of old photos
and config hot reload in one process. Use --no-stdin when running as a
service without a terminal.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noStdin, "no-stdin", false, "Do not read codes from stdin")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (default from config)")
}

// codeProcessor is what the console loop needs from the processor.
type codeProcessor interface {
	ProcessCode(ctx context.Context, code string) processor.Result
	Status() processor.State
	EndSession() processor.State
}

func runScanner(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	st := newStation(cfg, logger)
	defer st.Close()

	c := newCleaner()
	c.CleanupTemp()
	c.CleanupOld()

	printBanner(cmd.OutOrStdout())
	return scanLoop(ctx, os.Stdin, cmd.OutOrStdout(), st.proc)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	st := newStation(cfg, logger)
	defer st.Close()

	addr := listenAddr
	if addr == "" {
		addr = cfg.Listen
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var finder server.Finder
		if st.history != nil {
			finder = st.history
		}
		return server.New(st.proc, finder, logger).ListenAndServe(ctx, addr)
	})

	g.Go(func() error {
		return runCleanup(ctx, newCleaner())
	})

	g.Go(func() error {
		if err := watchConfig(ctx, configPath, st.proc, logger); err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		}
		return nil
	})

	if !noStdin {
		g.Go(func() error {
			printBanner(cmd.OutOrStdout())
			return scanLoop(ctx, os.Stdin, cmd.OutOrStdout(), st.proc)
		})
	}

	return g.Wait()
}

func newCleaner() *retention.Cleaner {
	return retention.NewCleaner(cfg.SessionsDir(), cfg.TempDir(),
		cfg.Retention.TempMaxAge, cfg.Retention.SessionMaxAge, logger)
}

// runCleanup purges expired files at startup and then periodically.
func runCleanup(ctx context.Context, c *retention.Cleaner) error {
	c.CleanupTemp()
	c.CleanupOld()

	tempTick := time.NewTicker(tempCleanupInterval)
	defer tempTick.Stop()
	oldTick := time.NewTicker(oldCleanupInterval)
	defer oldTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tempTick.C:
			c.CleanupTemp()
		case <-oldTick.C:
			c.CleanupOld()
		}
	}
}

// scanLoop feeds each non-blank input line to the processor until EOF or
// cancellation.
func scanLoop(ctx context.Context, in io.Reader, out io.Writer, p codeProcessor) error {
	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errCh:
					if err != nil {
						return fmt.Errorf("reading scanner input: %w", err)
					}
				default:
				}
				return nil
			}

			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/status":
				fmt.Fprintln(out, renderState(p.Status()))
				continue
			case "/end":
				prev := p.EndSession()
				if prev.Packer != nil {
					fmt.Fprintln(out, okStyle.Render("Session closed")+" "+
						mutedStyle.Render(fmt.Sprintf("%s, %d scans", prev.Packer.Name, prev.Scans)))
				} else {
					fmt.Fprintln(out, warnStyle.Render("No open session"))
				}
				continue
			}

			fmt.Fprintln(out, renderResult(p.ProcessCode(ctx, line)))
		}
	}
}

func printBanner(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("packscan  station "+cfg.Station))
	fmt.Fprintln(w, infoStyle.Render("Scan a packer ID to start. /status and /end are available."))
}
