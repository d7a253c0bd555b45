package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"capschord/internal/chord"
	"capschord/internal/ipc"
	"capschord/internal/sessionlog"
)

func stubSend(t *testing.T, fn func(pipe string, req ipc.ControlRequest) (ipc.ControlResponse, error)) {
	t.Helper()
	orig := sendFn
	sendFn = fn
	t.Cleanup(func() { sendFn = orig })
}

func TestExecutePrintsMessage(t *testing.T) {
	var gotPipe, gotCommand string
	stubSend(t, func(pipe string, req ipc.ControlRequest) (ipc.ControlResponse, error) {
		gotPipe, gotCommand = pipe, req.Command
		return ipc.ControlResponse{ID: req.ID, OK: true, Message: "chord handling frozen"}, nil
	})

	var out bytes.Buffer
	if err := execute(&out, Globals{Pipe: "p"}, ipc.CommandFreeze); err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if gotPipe != "p" || gotCommand != "freeze" {
		t.Errorf("sent %q to %q", gotCommand, gotPipe)
	}
	if out.String() != "chord handling frozen\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestExecuteStatus(t *testing.T) {
	stubSend(t, func(_ string, req ipc.ControlRequest) (ipc.ControlResponse, error) {
		return ipc.ControlResponse{ID: req.ID, OK: true, Status: &ipc.Status{
			PID:       42,
			Chord:     chord.State{Ctrl: true, Alt: true, CapsHeld: true},
			Bindings:  3,
			Listeners: 3,
			Warnings:  []sessionlog.Entry{{Time: time.Now(), Level: "WARN", Message: "[action] queue full, dropping action"}},
		}}, nil
	})

	var out bytes.Buffer
	if err := execute(&out, Globals{}, ipc.CommandStatus); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"pid:        42", "modifiers:  Ctrl+Alt", "caps held:  true", "bindings:   3 (3 listeners)", "queue full"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, out.String())
		}
	}
}

func TestExecuteJSON(t *testing.T) {
	stubSend(t, func(_ string, req ipc.ControlRequest) (ipc.ControlResponse, error) {
		return ipc.ControlResponse{ID: req.ID, OK: true, Message: "3 bindings applied"}, nil
	})

	var out bytes.Buffer
	if err := execute(&out, Globals{JSON: true}, ipc.CommandReload); err != nil {
		t.Fatal(err)
	}
	var resp ipc.ControlResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if !resp.OK || resp.Message != "3 bindings applied" || resp.ID == "" {
		t.Errorf("decoded = %+v", resp)
	}
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name    string
		resp    ipc.ControlResponse
		err     error
		wantErr string
	}{
		{name: "daemon error", resp: ipc.ControlResponse{Error: "reload c.yaml: bad key"}, wantErr: "reload c.yaml: bad key"},
		{name: "empty error", resp: ipc.ControlResponse{}, wantErr: "reload failed"},
		{name: "not running", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, wantErr: "capschord is not running"},
		{name: "transport", err: errors.New("response id mismatch"), wantErr: "reload: response id mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubSend(t, func(_ string, req ipc.ControlRequest) (ipc.ControlResponse, error) {
				resp := tt.resp
				resp.ID = req.ID
				return resp, tt.err
			})
			err := execute(&bytes.Buffer{}, Globals{Pipe: "p"}, ipc.CommandReload)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("execute() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
