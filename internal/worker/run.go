package worker

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/pkg/logger"
	"metatiled/internal/protocol"
	"metatiled/internal/worker/processor"
)

// RequestProcessor renders one decoded request.
type RequestProcessor interface {
	ProcessRequest(ctx context.Context, req protocol.RenderRequest) (*processor.Result, error)
}

type ServerDeps struct {
	Conn net.PacketConn
	// Heartbeat receives HeartbeatToken before every receive; nil disables it.
	Heartbeat    io.Writer
	Processor    RequestProcessor
	AliveTimeout time.Duration
	Debug        bool
	Log          *logger.Logger
}

// Server answers dispatcher requests arriving on a datagram socket, one at
// a time, in arrival order.
type Server struct {
	conn      net.PacketConn
	heartbeat io.Writer
	proc      RequestProcessor
	alive     time.Duration
	debug     bool
	log       *logger.Logger

	stats   counters
	started time.Time
}

type counters struct {
	requests        atomic.Int64
	ok              atomic.Int64
	failed          atomic.Int64
	heartbeats      atomic.Int64
	transportErrors atomic.Int64
	lastRenderMS    atomic.Int64
	busy            atomic.Bool
}

// Stats is a point-in-time copy of the server counters.
type Stats struct {
	Requests        int64     `json:"requests"`
	OK              int64     `json:"ok"`
	Failed          int64     `json:"failed"`
	Heartbeats      int64     `json:"heartbeats"`
	TransportErrors int64     `json:"transport_errors"`
	LastRenderMS    int64     `json:"last_render_ms"`
	Busy            bool      `json:"busy"`
	StartedAt       time.Time `json:"started_at"`
}

func NewServer(d ServerDeps) *Server {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	alive := d.AliveTimeout
	if alive <= 0 {
		alive = DefaultAliveTimeout
	}
	return &Server{
		conn:      d.Conn,
		heartbeat: d.Heartbeat,
		proc:      d.Processor,
		alive:     alive,
		debug:     d.Debug,
		log:       log.WithComponent("protocol"),
		started:   time.Now().UTC(),
	}
}

// Stats returns the current counters.
func (s *Server) Stats() Stats {
	return Stats{
		Requests:        s.stats.requests.Load(),
		OK:              s.stats.ok.Load(),
		Failed:          s.stats.failed.Load(),
		Heartbeats:      s.stats.heartbeats.Load(),
		TransportErrors: s.stats.transportErrors.Load(),
		LastRenderMS:    s.stats.lastRenderMS.Load(),
		Busy:            s.stats.busy.Load(),
		StartedAt:       s.started,
	}
}

// Run serves requests until ctx is cancelled. Cancellation is observed before
// each receive, so a request already being handled always gets its response. Run returns nil after a cancellation and an error only when the
// socket is closed underneath it.
func (s *Server) Run(ctx context.Context) error {
	log := s.log
	log.Info("protocol server started",
		"addr", s.conn.LocalAddr().String(),
		"alive_timeout", s.alive.String(),
	)

	// Wake an idle receive as soon as shutdown starts.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, MaxPacketSize)
	for {
		select {
		case <-ctx.Done():
			log.Info("protocol server stopping")
			return nil
		default:
		}

		s.beat()

		if err := s.conn.SetReadDeadline(time.Now().Add(s.alive)); err != nil {
			log.WithError(err).Warn("set read deadline failed")
		}
		// The wake-up deadline may have fired before the one above replaced it.
		if ctx.Err() != nil {
			log.Info("protocol server stopping")
			return nil
		}
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				if ctx.Err() != nil {
					log.Info("protocol server stopping")
					return nil
				}
				return errors.WrapWithCode(err, errors.CodeTransport, "worker.run", "socket closed")
			}
			s.stats.transportErrors.Add(1)
			log.WithError(err).Warn("receive failed, retrying")
			continue
		}

		resp := s.Handle(ctx, buf[:n])
		if _, err := s.conn.WriteTo(resp, addr); err != nil {
			s.stats.transportErrors.Add(1)
			log.WithError(err).Warn("send response failed", "addr", addr.String())
		}
	}
}

func (s *Server) beat() {
	if s.heartbeat == nil {
		return
	}
	if _, err := io.WriteString(s.heartbeat, HeartbeatToken); err != nil {
		s.log.WithError(err).Warn("heartbeat failed")
		return
	}
	s.stats.heartbeats.Add(1)
}

// Handle turns one request datagram into exactly one response datagram. It
// never panics and never returns nil.
func (s *Server) Handle(ctx context.Context, data []byte) []byte {
	s.stats.requests.Add(1)
	s.stats.busy.Store(true)
	defer s.stats.busy.Store(false)

	start := time.Now()
	fields := protocol.Decode(data)
	id := fields[protocol.FieldID]

	reqCtx := logger.ContextWithRequestID(ctx, id)
	if layer := fields[protocol.FieldMap]; layer != "" {
		reqCtx = logger.ContextWithLayer(reqCtx, layer)
	}
	log := s.log.FromContext(reqCtx)
	if s.debug {
		log.Debug("request received", "message", string(data))
	}

	resp, err := s.dispatch(reqCtx, fields)
	elapsed := time.Since(start)
	if err != nil {
		s.stats.failed.Add(1)
		resp = protocol.RenderResponse{ID: id, ErrMsg: errors.PublicMessage(err)}
		args := []any{"type", fields[protocol.FieldType], "duration_ms", elapsed.Milliseconds()}
		var e *errors.Error
		if errors.IsCode(err, errors.CodeInternal) && errors.As(err, &e) {
			args = append(args, "stack", e.StackTrace())
		}
		log.WithError(err).Warn("request failed", args...)
	} else {
		s.stats.ok.Add(1)
		s.stats.lastRenderMS.Store(elapsed.Milliseconds())
		log.Info("request completed",
			"type", fields[protocol.FieldType],
			"render_time", resp.RenderTime,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	out := protocol.Encode(resp.Fields())
	if s.debug {
		log.Debug("response sent", "message", string(out))
	}
	return out
}

func (s *Server) dispatch(ctx context.Context, fields map[string]string) (resp protocol.RenderResponse, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf(errors.CodeInternal, "request handler panic: %v", rec)
		}
	}()

	switch typ := fields[protocol.FieldType]; typ {
	case protocol.TypeMetatileRenderRequest:
		req, err := protocol.ParseRenderRequest(fields)
		if err != nil {
			return resp, err
		}
		res, err := s.proc.ProcessRequest(ctx, req)
		if err != nil {
			return resp, err
		}
		return protocol.RenderResponse{
			Type:       typ,
			ID:         req.ID,
			OK:         true,
			RenderTime: res.RenderTime(),
		}, nil
	default:
		return resp, errors.Dispatch(typ)
	}
}
