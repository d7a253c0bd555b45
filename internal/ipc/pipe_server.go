package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	defaultPipeConnTimeout              = 10 * time.Second
	maxPipeRequestBytes                 = 4 * 1024
	defaultPipeMaxConcurrentConnections = 8
	connSlotAcquireTimeout              = 2 * time.Second
)

// PipeServer answers control requests from capschordctl.
type PipeServer struct {
	pipeName string
	executor Executor

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listener  net.Listener
	started   bool
	wg        sync.WaitGroup
	connSlots chan struct{}
}

// NewPipeServer constructs a PipeServer. An empty pipeName selects DefaultPipeName.
func NewPipeServer(pipeName string, executor Executor) *PipeServer {
	ctx, cancel := context.WithCancel(context.Background())
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}
	return &PipeServer{
		pipeName:  pipeName,
		executor:  executor,
		ctx:       ctx,
		cancel:    cancel,
		connSlots: make(chan struct{}, defaultPipeMaxConcurrentConnections),
	}
}

// PipeName returns the listen endpoint.
func (s *PipeServer) PipeName() string {
	return s.pipeName
}

// Start begins listening.
func (s *PipeServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("pipe server already started")
	}
	if s.executor == nil {
		return errors.New("pipe server requires executor")
	}

	listener, err := listen(s.pipeName)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.pipeName, err)
	}

	s.listener = listener
	s.started = true
	s.wg.Go(s.acceptLoop)
	slog.Info("[ipc] control pipe listening", "pipe", s.pipeName)
	return nil
}

// Stop closes the listener and waits for in-flight connections.
func (s *PipeServer) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	var closeErr error
	if listener != nil {
		if err := listener.Close(); err != nil {
			closeErr = fmt.Errorf("close %s: %w", s.pipeName, err)
		}
	}
	s.wg.Wait()
	return closeErr
}

// Serve runs the server until ctx is done. It fits
// workerutil.RunWithPanicRecovery.
func (s *PipeServer) Serve(ctx context.Context) {
	if err := s.Start(); err != nil {
		slog.Warn("[ipc] control pipe disabled", "pipe", s.pipeName, "error", err)
		return
	}
	<-ctx.Done()
	if err := s.Stop(); err != nil {
		slog.Warn("[ipc] failed to stop control pipe", "error", err)
	}
}

func (s *PipeServer) acceptLoop() {
	consecutiveErrors := 0
	for {
		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener == nil {
			return
		}

		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors > 10 {
				slog.Warn("[ipc] accept loop: repeated failures", "error", err, "count", consecutiveErrors)
				time.Sleep(500 * time.Millisecond)
			} else {
				slog.Debug("[ipc] accept error", "error", err)
			}
			continue
		}
		consecutiveErrors = 0

		if !s.acquireConnectionSlot() {
			s.writeResponse(conn, ControlResponse{Error: "server busy, try again later"})
			if closeErr := conn.Close(); closeErr != nil {
				slog.Debug("[ipc] failed to close rejected connection", "error", closeErr)
			}
			continue
		}

		s.wg.Go(func() {
			defer s.releaseConnectionSlot()
			s.handleConnection(conn)
		})
	}
}

// handleConnection serves one request on conn.
func (s *PipeServer) handleConnection(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(defaultPipeConnTimeout)); err != nil {
		slog.Warn("[ipc] failed to set connection deadline", "error", err)
		return
	}

	reader := bufio.NewReaderSize(conn, maxPipeRequestBytes+1)
	rawReq, err := readRequestFrame(reader)
	if errors.Is(err, io.EOF) {
		slog.Debug("[ipc] client disconnected without sending data")
		return
	}
	if err != nil {
		s.writeResponse(conn, errorResponse("", "invalid request: %v", err))
		return
	}

	req, err := decodeRequest(rawReq)
	if err != nil {
		s.writeResponse(conn, errorResponse("", "invalid request: %v", err))
		return
	}

	slog.Debug("[ipc] control request", "id", req.ID, "command", req.Command)
	s.writeResponse(conn, s.execute(req))
}

// execute runs the executor, converting a panic into an error response.
func (s *PipeServer) execute(req ControlRequest) (resp ControlResponse) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[DEBUG-PANIC] control command panicked", "id", req.ID, "command", req.Command, "panic", r)
			resp = errorResponse(req.ID, "internal error running %s", req.Command)
		}
	}()
	resp = s.executor.Execute(req)
	resp.ID = req.ID
	return resp
}

func (s *PipeServer) writeResponse(conn net.Conn, resp ControlResponse) {
	rawResp, err := encodeResponse(resp)
	if err != nil {
		slog.Warn("[ipc] failed to encode response", "error", err, "id", resp.ID)
		rawResp = []byte(`{"ok":false,"error":"internal encode error"}`)
	}
	if _, err := conn.Write(append(rawResp, '\n')); err != nil {
		slog.Debug("[ipc] failed to write response", "error", err)
	}
}

func readRequestFrame(reader *bufio.Reader) ([]byte, error) {
	return readDelimitedFrame(reader, maxPipeRequestBytes)
}

func (s *PipeServer) acquireConnectionSlot() bool {
	timer := time.NewTimer(connSlotAcquireTimeout)
	defer timer.Stop()
	select {
	case s.connSlots <- struct{}{}:
		return true
	case <-timer.C:
		slog.Warn("[ipc] connection slots exhausted, rejecting client")
		return false
	case <-s.ctx.Done():
		return false
	}
}

func (s *PipeServer) releaseConnectionSlot() {
	select {
	case <-s.connSlots:
	default:
		slog.Warn("[ipc] releaseConnectionSlot: no slot to release")
	}
}
