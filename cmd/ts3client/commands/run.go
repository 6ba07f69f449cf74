package commands

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ts3cli/internal/engine"
)

// run connects to the configured server and stays attached until the
// connection drops or the process is interrupted, printing notifications
// to stdout and accepting a small chat command language on stdin:
//
//	/move <channel>        move to a channel by name
//	/msg <text>             send a channel text message
//	/server <text>          send a server text message
//	/desc <text>            update the own client's description
//	/quit                   disconnect and exit
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect and stay attached, relaying chat on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.New(slog.NewTextHandler(os.Stderr, nil))
			e := engine.New(cfg, log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := e.Connect(ctx); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer e.Disconnect()
			fmt.Printf("server fingerprint: %s\n", e.ServerFingerprint())

			done := make(chan struct{})
			go consoleLoop(e, done)

			for {
				select {
				case ev, ok := <-e.Events():
					if !ok {
						return nil
					}
					printEvent(ev)
				case <-ctx.Done():
					return nil
				case <-done:
					return nil
				}
			}
		},
	}
}

func printEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventConnected:
		fmt.Printf("connected: %s\n", ev.VirtualServerName)
	case engine.EventDisconnected:
		fmt.Printf("disconnected: %s\n", ev.Reason)
	case engine.EventWarning:
		fmt.Printf("warning (%s): %s\n", ev.ErrKind, ev.Detail)
	case engine.EventError:
		fmt.Printf("error (%s): %s\n", ev.ErrKind, ev.Detail)
	case engine.EventTextMessage:
		fmt.Printf("<%s> %s\n", ev.InvokerName, ev.Text)
	}
}

func consoleLoop(e *engine.Engine, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := dispatchLine(e, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
		if line == "/quit" {
			return
		}
	}
}

func dispatchLine(e *engine.Engine, line string) error {
	switch {
	case line == "/quit":
		return e.Disconnect()
	case strings.HasPrefix(line, "/move "):
		name := strings.TrimSpace(strings.TrimPrefix(line, "/move "))
		ok, err := e.MoveToChannel(name)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("no channel named %q\n", name)
		}
		return nil
	case strings.HasPrefix(line, "/msg "):
		return e.SendChannelMessage(strings.TrimPrefix(line, "/msg "))
	case strings.HasPrefix(line, "/server "):
		return e.SendServerMessage(strings.TrimPrefix(line, "/server "))
	case strings.HasPrefix(line, "/desc "):
		return e.UpdateDescription(strings.TrimPrefix(line, "/desc "))
	default:
		return e.SendChannelMessage(line)
	}
}
