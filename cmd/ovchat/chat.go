package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ovchat/internal/manager"
	"ovchat/internal/pipeline"
	"ovchat/internal/session"
	"ovchat/pkg/types"
)

// chatSession is the part of the manager the terminal loop drives.
type chatSession interface {
	Chat(ctx context.Context, prompt string, w io.Writer) (pipeline.Result, error)
	Load(ctx context.Context) (*manager.Loaded, error)
	Store() *session.Store
	Status() types.StatusResponse
}

func newChatCmd(o *options) *cobra.Command {
	var setup bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Load the selected model and chat from the terminal",
		Long: "Reads one prompt per line and streams the reply. Lines starting " +
			"with '/' are commands; type /help for the list.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, err := newManager(ctx, o.cfg)
			if err != nil {
				return err
			}
			defer m.Close()
			if setup {
				if err := runSetup(m.Store()); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			if err := loadAndReport(ctx, m, out); err != nil {
				return err
			}
			return runChatLoop(ctx, cmd.InOrStdin(), out, m)
		},
	}
	cmd.Flags().BoolVar(&setup, "setup", false, "Pick model, device, variant and temperature interactively")
	return cmd
}

func loadAndReport(ctx context.Context, c chatSession, out io.Writer) error {
	s := c.Store().Current()
	fmt.Fprintf(out, "loading %s %s on %s...\n", s.ModelID, s.Variant, s.Device)
	l, err := c.Load(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ready: %s (%s, %.2f MB)\n", l.Dir, l.Source, l.SizeMB)
	return nil
}

const chatHelp = `commands:
  /temp <0-1>       set temperature
  /tokens <n>       set max new tokens
  /device <name>    select device (applied on /load)
  /model <id>       select model (applied on /load)
  /variant <name>   select compression variant (applied on /load)
  /load             acquire and load the current selection
  /status           show state
  /quit             exit`

// runChatLoop reads prompts from in until EOF, /quit or ctx is done.
func runChatLoop(ctx context.Context, in io.Reader, out io.Writer, c chatSession) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := chatCommand(ctx, line, out, c)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}
		res, err := c.Chat(ctx, line, out)
		fmt.Fprintln(out)
		switch {
		case err == nil:
			if res.FinishReason == "length" {
				fmt.Fprintln(out, "[truncated at max new tokens]")
			}
		case errors.Is(err, context.Canceled):
			return nil
		default:
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func chatCommand(ctx context.Context, line string, out io.Writer, c chatSession) (quit bool, err error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	store := c.Store()
	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprintln(out, chatHelp)
	case "temp", "temperature":
		t, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return false, fmt.Errorf("temperature: %w", err)
		}
		if err := store.SetTemperature(t); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "temperature %v\n", store.Current().Temperature)
	case "tokens":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("tokens: %w", err)
		}
		if err := store.SetMaxNewTokens(n); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "max new tokens %d\n", n)
	case "device":
		err := store.SetDevice(arg)
		fmt.Fprintf(out, "device %s\n", store.Current().Device)
		return false, err
	case "model":
		if err := store.SetModel(arg); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "model %s\n", store.Current().ModelID)
	case "variant":
		if err := store.SetVariant(arg); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "variant %s\n", store.Current().Variant)
	case "load":
		return false, loadAndReport(ctx, c, out)
	case "status":
		st := c.Status()
		fmt.Fprintf(out, "state %s, model %s %s on %s, temperature %v\n",
			st.State, st.Session.Model, st.Session.Variant, st.Session.Device, st.Session.Temperature)
		if st.LastError != "" {
			fmt.Fprintf(out, "last error: %s\n", st.LastError)
		}
	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return false, nil
}
