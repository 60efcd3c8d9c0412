package protocol

import (
	"context"
	"net"
	"time"

	"metatiled/internal/pkg/errors"
)

// maxDatagram bounds a response read by Exchange.
const maxDatagram = 512

// Exchange sends one message to a backend at addr and waits for its reply,
// the way the dispatcher does. A zero timeout waits until ctx is done.
func Exchange(ctx context.Context, addr string, msg map[string]string, timeout time.Duration) (map[string]string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeTransport, "protocol.exchange", "dial "+addr)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if timeout > 0 && (!ok || time.Now().Add(timeout).Before(deadline)) {
		deadline, ok = time.Now().Add(timeout), true
	}
	if ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeTransport, "protocol.exchange", "set deadline")
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(Encode(msg)); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeTransport, "protocol.exchange", "send")
	}

	buf := make([]byte, maxDatagram)
	n, err := conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, errors.Timeout("waiting for response from " + addr)
		}
		return nil, errors.WrapWithCode(err, errors.CodeTransport, "protocol.exchange", "receive")
	}
	return Decode(buf[:n]), nil
}
