// Command capschordctl talks to a running capschord daemon over its control pipe.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"capschord/internal/ipc"
)

// Globals are the flags shared by every command.
type Globals struct {
	Pipe string `help:"Control pipe name (default: per-user pipe)." env:"CAPSCHORD_PIPE"`
	JSON bool   `help:"Print the raw JSON response."`
}

type cli struct {
	Globals `embed:""`

	Status   struct{} `cmd:"" help:"Show chord state, bindings and recent warnings."`
	Freeze   struct{} `cmd:"" help:"Stop handling chords; every key passes through."`
	Unfreeze struct{} `cmd:"" help:"Resume chord handling."`
	Clear    struct{} `cmd:"" help:"Unregister every binding until the next reload."`
	Reload   struct{} `cmd:"" help:"Re-read the config file and re-register bindings."`
}

// sendFn is replaced in tests.
var sendFn = ipc.Send

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("capschordctl"),
		kong.Description("Control a running capschord daemon."),
		kong.UsageOnError(),
	)
	command := strings.Fields(kctx.Command())[0]
	kctx.FatalIfErrorf(execute(os.Stdout, c.Globals, command))
}

func execute(out io.Writer, g Globals, command string) error {
	req := ipc.NewRequest(command)
	resp, err := sendFn(g.Pipe, req)
	if err != nil {
		if ipc.IsConnectionError(err) {
			return fmt.Errorf("capschord is not running (pipe %s): %w", pipeLabel(g.Pipe), err)
		}
		return fmt.Errorf("%s: %w", command, err)
	}
	if g.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else if resp.OK {
		printResponse(out, resp)
	}
	if !resp.OK {
		if resp.Error == "" {
			return errors.New(command + " failed")
		}
		return errors.New(resp.Error)
	}
	return nil
}

func pipeLabel(pipe string) string {
	if pipe == "" {
		return ipc.DefaultPipeName()
	}
	return pipe
}

func printResponse(out io.Writer, resp ipc.ControlResponse) {
	if resp.Status == nil {
		fmt.Fprintln(out, resp.Message)
		return
	}
	st := resp.Status
	fmt.Fprintf(out, "pid:        %d\n", st.PID)
	fmt.Fprintf(out, "config:     %s\n", st.ConfigPath)
	fmt.Fprintf(out, "log level:  %s\n", st.LogLevel)
	fmt.Fprintf(out, "frozen:     %t\n", st.Chord.Frozen)
	fmt.Fprintf(out, "replaying:  %t\n", st.Chord.Replaying)
	fmt.Fprintf(out, "caps held:  %t\n", st.Chord.CapsHeld)
	fmt.Fprintf(out, "modifiers:  %s\n", heldModifiers(st))
	fmt.Fprintf(out, "bindings:   %d (%d listeners)\n", st.Bindings, st.Listeners)
	fmt.Fprintf(out, "actions:    %d started, %d failed, %d dropped, %d/%d pending\n",
		st.Actions.Started, st.Actions.Failed, st.Actions.Dropped, st.Actions.Pending, st.Actions.Capacity)
	if len(st.Warnings) == 0 {
		return
	}
	fmt.Fprintln(out, "recent warnings:")
	for _, w := range st.Warnings {
		fmt.Fprintf(out, "  %s %-5s %s\n", w.Time.Format("15:04:05"), w.Level, w.Message)
	}
}

func heldModifiers(st *ipc.Status) string {
	var held []string
	for _, m := range []struct {
		name string
		on   bool
	}{
		{"Ctrl", st.Chord.Ctrl},
		{"Shift", st.Chord.Shift},
		{"Alt", st.Chord.Alt},
		{"Meta", st.Chord.Meta},
	} {
		if m.on {
			held = append(held, m.name)
		}
	}
	if len(held) == 0 {
		return "none"
	}
	return strings.Join(held, "+")
}
