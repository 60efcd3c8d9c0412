package processor

import (
	"context"
	"io"
	"time"

	"github.com/spf13/afero/mem"

	"metatiled/internal/metatile"
	"metatiled/internal/pkg/errors"
	"metatiled/internal/pkg/logger"
	"metatiled/internal/ports"
	"metatiled/internal/protocol"
	"metatiled/internal/worker/journal"
	"metatiled/internal/worker/notify"
	"metatiled/internal/worker/util"
)

// Journal records request outcomes.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Notifier announces published metatiles.
type Notifier interface {
	Notify(ctx context.Context, e notify.Event) (int64, error)
}

// DefaultSideEffectTimeout bounds each mirror upload, journal write and
// completion notice when Deps leaves SideEffectTimeout unset.
const DefaultSideEffectTimeout = 10 * time.Second

type Deps struct {
	Encoder *metatile.Encoder
	Store   ports.StorageProvider
	// Mirror, Journal and Notifier are optional. Their failures are logged
	// and never fail a request.
	Mirror   ports.StorageProvider
	Journal  Journal
	Notifier Notifier
	// SideEffectTimeout bounds each call to Mirror, Journal and Notifier.
	SideEffectTimeout time.Duration
	Size              int
	Log               *logger.Logger
}

// Processor runs the render pipeline for one request: encode the metatile
// into memory, publish it, then record and announce the outcome.
type Processor struct {
	encoder  *metatile.Encoder
	journal  Journal
	notifier Notifier
	size     int
	timeout  time.Duration
	log      *logger.Logger

	output *OutputHandler
}

// Result describes a published metatile.
type Result struct {
	ObjectKey string
	Size      int64
	Report    *metatile.Report
	Elapsed   time.Duration
}

// RenderTime returns the elapsed time in whole seconds.
func (r *Result) RenderTime() int {
	return int(r.Elapsed / time.Second)
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	size := d.Size
	if size < 1 {
		size = metatile.DefaultSize
	}

	timeout := d.SideEffectTimeout
	if timeout <= 0 {
		timeout = DefaultSideEffectTimeout
	}

	return &Processor{
		encoder:  d.Encoder,
		journal:  d.Journal,
		notifier: d.Notifier,
		size:     size,
		timeout:  timeout,
		log:      log,
		output:   NewOutputHandler(d.Store, d.Mirror, timeout, log),
	}
}

// Size returns the metatile edge length.
func (p *Processor) Size() int {
	return p.size
}

// ProcessRequest renders and publishes the metatile req asks for. The render
// and the publish run detached from ctx cancellation, so a shutdown signal
// never interrupts them half way. The optional mirror, journal and notifier
// calls each get their own deadline instead.
func (p *Processor) ProcessRequest(ctx context.Context, req protocol.RenderRequest) (*Result, error) {
	log := p.log.WithRequestID(req.ID).WithLayer(req.Map)
	start := time.Now()
	work := context.WithoutCancel(ctx)

	log.Debug("encoding metatile", "z", req.Z, "x", req.X, "y", req.Y, "size", p.size)
	scratch := mem.NewFileHandle(mem.CreateFile(req.Map + ".meta"))
	defer scratch.Close()

	report, err := p.encoder.Encode(work, req.Map, req.X, req.Y, req.Z, p.size, scratch)
	if err != nil {
		return nil, p.fail(work, req, report, start, errors.Wrap(err, "processor.encode", "metatile encode failed"))
	}
	data, err := readScratch(scratch)
	if err != nil {
		return nil, p.fail(work, req, report, start, err)
	}

	key := metatile.ObjectKey(report.Layer.Name, req.X, req.Y, req.Z)
	size, err := p.output.Publish(work, key, data)
	if err != nil {
		return nil, p.fail(work, req, report, start, errors.Wrap(err, "processor.publish", "publish failed"))
	}

	res := &Result{
		ObjectKey: key,
		Size:      size,
		Report:    report,
		Elapsed:   time.Since(start),
	}
	log.Debug("metatile published",
		"object_key", key,
		"bytes", size,
		"rendered", report.Rendered,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)

	p.record(work, req, report, res, nil)
	p.announce(work, req, res)
	return res, nil
}

func (p *Processor) fail(ctx context.Context, req protocol.RenderRequest, report *metatile.Report, start time.Time, cause error) error {
	log := p.log.WithRequestID(req.ID).WithLayer(req.Map)

	log.WithError(cause).Error("render request failed")

	p.record(ctx, req, report, &Result{Elapsed: time.Since(start)}, cause)
	return cause
}

func (p *Processor) record(ctx context.Context, req protocol.RenderRequest, report *metatile.Report, res *Result, cause error) {
	if p.journal == nil {
		return
	}
	e := journal.Entry{
		ID:        util.NewID("render"),
		RequestID: req.ID,
		Layer:     req.Map,
		X:         req.X,
		Y:         req.Y,
		Z:         req.Z,
		OK:        cause == nil,
		ObjectKey: res.ObjectKey,
		Duration:  res.Elapsed,
	}
	if report != nil {
		e.Layer = report.Layer.Name
		e.Rendered, e.Skipped, e.Failed = report.Rendered, report.Skipped, report.Failed
	}
	if cause != nil {
		e.Error = truncate(errors.PublicMessage(cause), 2000)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.journal.Record(ctx, e); err != nil {
		p.log.WithRequestID(req.ID).WithError(err).Warn("journal record failed")
	}
}

func (p *Processor) announce(ctx context.Context, req protocol.RenderRequest, res *Result) {
	if p.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	_, err := p.notifier.Notify(ctx, notify.Event{
		RequestID:  req.ID,
		Layer:      res.Report.Layer.Name,
		X:          req.X,
		Y:          req.Y,
		Z:          req.Z,
		ObjectKey:  res.ObjectKey,
		RenderTime: res.RenderTime(),
	})
	if err != nil {
		p.log.WithRequestID(req.ID).WithError(err).Warn("completion notify failed")
	}
}

// readScratch returns everything written to an encode's scratch file.
func readScratch(f *mem.File) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInternal, "processor.scratch", "rewind")
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInternal, "processor.scratch", "read")
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
