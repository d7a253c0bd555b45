package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	defaultPipeDialTimeout = 3 * time.Second
	defaultPipeRWTimeout   = 15 * time.Second
	maxPipeResponseBytes   = 256 * 1024
)

// Send sends one request and waits for its response. A response whose ID
// does not match the request is an error.
func Send(pipeName string, req ControlRequest) (ControlResponse, error) {
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}

	conn, err := dial(pipeName, defaultPipeDialTimeout)
	if err != nil {
		return ControlResponse{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(defaultPipeRWTimeout)); err != nil {
		return ControlResponse{}, fmt.Errorf("set deadline: %w", err)
	}

	rawReq, err := encodeRequest(req)
	if err != nil {
		return ControlResponse{}, err
	}
	if _, err := conn.Write(append(rawReq, '\n')); err != nil {
		return ControlResponse{}, err
	}

	respRaw, err := readDelimitedFrame(bufio.NewReaderSize(conn, maxPipeResponseBytes+1), maxPipeResponseBytes)
	if err != nil {
		return ControlResponse{}, err
	}

	resp, err := decodeResponse(respRaw)
	if err != nil {
		return ControlResponse{}, fmt.Errorf("invalid response: %w", err)
	}
	if resp.ID != req.ID {
		if resp.ID == "" && resp.Error != "" {
			return resp, nil
		}
		return ControlResponse{}, fmt.Errorf("response id %q does not match request id %q", resp.ID, req.ID)
	}
	return resp, nil
}

func readDelimitedFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxBytes)
	}
	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return nil, io.EOF
		}
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// IsConnectionError reports whether err means the daemon is not listening.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "open"
	}
	return isPipeNotFound(err)
}
