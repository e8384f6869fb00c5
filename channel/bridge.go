package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pithecene-io/framelog/ipc"
	"github.com/pithecene-io/framelog/log"
	"github.com/pithecene-io/framelog/types"
)

// Pump reads length-prefixed messages from r and sends each to dst until
// r reaches EOF or ctx is cancelled. A clean EOF returns nil.
func Pump(ctx context.Context, r io.Reader, dst Channel) error {
	dec := ipc.NewFrameDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := dec.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pump %s: %w", dst.Name(), err)
		}
		if err := dst.Send(ctx, payload); err != nil {
			return fmt.Errorf("pump %s: %w", dst.Name(), err)
		}
	}
}

// Forward receives messages from src and writes them length-prefixed to w
// until src is closed and drained or ctx is cancelled. A closed source
// returns nil.
func Forward(ctx context.Context, src Channel, w io.Writer) error {
	enc := ipc.NewFrameEncoder(w)
	for {
		msg, err := src.Receive(ctx)
		if errors.Is(err, ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := enc.WriteFrame(msg); err != nil {
			return fmt.Errorf("forward %s: %w", src.Name(), err)
		}
	}
}

// controlIOTimeout bounds each control connection exchange.
const controlIOTimeout = 5 * time.Second

// ControlServer accepts control commands on a unix-domain socket and
// queues them on a control channel. Each connection carries one wire
// Control message and receives one ControlReply.
type ControlServer struct {
	path     string
	dst      Channel
	codec    *ipc.Codec
	logger   *log.Logger
	listener net.Listener

	wg sync.WaitGroup
}

// ListenControl binds a unix socket at path. A stale socket file left by a
// previous process is removed first.
func ListenControl(path string, dst Channel, codec *ipc.Codec, logger *log.Logger) (*ControlServer, error) {
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale control socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen control socket %s: %w", path, err)
	}

	return &ControlServer{
		path:     path,
		dst:      dst,
		codec:    codec,
		logger:   logger,
		listener: ln,
	}, nil
}

// Path returns the socket path.
func (s *ControlServer) Path() string {
	return s.path
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *ControlServer) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.listener.Close() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// Close stops accepting connections and removes the socket file.
func (s *ControlServer) Close() error {
	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	_ = os.Remove(s.path)
	return err
}

func (s *ControlServer) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(controlIOTimeout))

	reply := s.accept(ctx, conn)
	if !reply.Accepted {
		s.logger.Warn("control command rejected", map[string]any{
			"command": reply.Command.String(),
			"error":   reply.Error,
		})
	}

	payload, err := ipc.EncodeControlReply(reply)
	if err != nil {
		s.logger.Error("failed to encode control reply", map[string]any{"error": err.Error()})
		return
	}
	if err := ipc.NewFrameEncoder(conn).WriteFrame(payload); err != nil {
		s.logger.Warn("failed to write control reply", map[string]any{"error": err.Error()})
	}
}

func (s *ControlServer) accept(ctx context.Context, conn net.Conn) *ipc.ControlReply {
	payload, err := ipc.NewFrameDecoder(conn).ReadFrame()
	if err != nil {
		return &ipc.ControlReply{Error: fmt.Sprintf("read control frame: %v", err)}
	}

	msg, err := s.codec.Decode(payload)
	if err != nil {
		return &ipc.ControlReply{Error: err.Error()}
	}
	if msg.Kind != types.KindControl {
		return &ipc.ControlReply{Error: fmt.Sprintf("expected control message, got %s", msg.Kind)}
	}

	sendCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.dst.Send(sendCtx, payload); err != nil {
		return &ipc.ControlReply{Command: msg.Command, Error: err.Error()}
	}

	s.logger.Info("control command queued", map[string]any{
		"command":  msg.Command.String(),
		"filename": msg.Filename,
	})
	return &ipc.ControlReply{Accepted: true, Command: msg.Command}
}

// SendControl dials the control socket at path, sends msg and returns the
// server's reply.
func SendControl(ctx context.Context, path string, msg ipc.Message) (*ipc.ControlReply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial control socket %s: %w", path, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(controlIOTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if err := ipc.NewFrameEncoder(conn).WriteFrame(msg.Marshal()); err != nil {
		return nil, fmt.Errorf("write control frame: %w", err)
	}

	payload, err := ipc.NewFrameDecoder(conn).ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("read control reply: %w", err)
	}
	return ipc.DecodeControlReply(payload)
}
