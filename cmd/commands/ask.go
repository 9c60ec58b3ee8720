package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	wsclient "github.com/dohr-michael/coinchat/clients/ws"
	"github.com/dohr-michael/coinchat/internal/events"
	wsprotocol "github.com/dohr-michael/coinchat/internal/gateway/ws"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send a message to a running gateway and print the reply",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway WebSocket URL (default: from config)",
			},
			&cli.StringFlag{
				Name:    "session",
				Aliases: []string{"s"},
				Usage:   "Session ID to resume (empty = new session)",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model to answer with",
			},
			&cli.BoolFlag{
				Name:  "reasoning",
				Usage: "Print the model's reasoning to stderr",
			},
			&cli.BoolFlag{
				Name:  "render",
				Usage: "Render the final reply as markdown instead of streaming it",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Response timeout",
				Value: 2 * time.Minute,
			},
		},
		Action: runAsk,
	}
}

func runAsk(ctx context.Context, cmd *cli.Command) error {
	message := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if message == "" {
		return fmt.Errorf("usage: coinchat ask <message>")
	}

	gatewayURL := cmd.String("gateway")
	if gatewayURL == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		gatewayURL = "ws://" + cfg.Gateway.Addr() + "/api/ws"
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	client, err := wsclient.Dial(ctx, gatewayURL)
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}
	defer client.Close()

	sessionFlag := cmd.String("session")
	if _, err := client.OpenSession(sessionFlag, ""); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	if sessionFlag == "" {
		fmt.Fprintf(os.Stderr, "session: %s\n", client.SessionID())
	}
	if m := cmd.String("model"); m != "" {
		if err := client.SelectModel(m); err != nil {
			return fmt.Errorf("select model: %w", err)
		}
	}

	if err := client.SendMessage(message); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	tty := term.IsTerminal(int(os.Stdout.Fd()))
	p := &replyPrinter{
		out:    os.Stdout,
		stream: tty && !cmd.Bool("render"),
	}
	if cmd.Bool("reasoning") {
		p.reasoning = os.Stderr
	}
	if tty && cmd.Bool("render") {
		p.width = 80
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			p.width = w
		}
	}

	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("timeout waiting for response")
			}
			return fmt.Errorf("read frame: %w", err)
		}
		done, err := p.handle(frame)
		if done || err != nil {
			return err
		}
	}
}

// replyPrinter writes a reply as its frames arrive. Stream content is
// cumulative, so only the unseen suffix is printed.
type replyPrinter struct {
	out       io.Writer
	reasoning io.Writer // nil hides reasoning
	stream    bool
	width     int // >0 renders the final reply as markdown

	printed         int
	printedThinking int
}

// handle processes one frame and reports whether the reply is complete.
func (p *replyPrinter) handle(f wsprotocol.Frame) (bool, error) {
	switch events.EventType(f.Event) {
	case events.EventAssistantStream:
		var payload events.AssistantStreamPayload
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			return false, nil
		}
		if payload.Phase == events.StreamPhaseDelta {
			p.writeReasoning(payload.Reasoning)
			if p.stream {
				fmt.Fprint(p.out, unseen(payload.Content, &p.printed))
			}
		}
		return false, nil

	case events.EventAssistantMessage:
		var payload events.AssistantMessagePayload
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			return false, nil
		}
		if payload.Error != "" {
			if p.printed > 0 {
				fmt.Fprintln(p.out)
			}
			return true, errors.New(payload.Error)
		}
		p.writeReasoning(payload.Reasoning)
		if p.printedThinking > 0 {
			fmt.Fprintln(p.reasoning)
		}
		switch {
		case p.stream:
			fmt.Fprintln(p.out, unseen(payload.Content, &p.printed))
		case p.width > 0:
			fmt.Fprintln(p.out, renderMarkdown(payload.Content, p.width))
		default:
			fmt.Fprintln(p.out, payload.Content)
		}
		return true, nil
	}
	return false, nil
}

func (p *replyPrinter) writeReasoning(s string) {
	if p.reasoning == nil {
		return
	}
	fmt.Fprint(p.reasoning, unseen(s, &p.printedThinking))
}

// unseen returns the part of cumulative text past *n and advances *n.
func unseen(text string, n *int) string {
	if len(text) <= *n {
		return ""
	}
	s := text[*n:]
	*n = len(text)
	return s
}
