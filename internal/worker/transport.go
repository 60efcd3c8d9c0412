package worker

import (
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"metatiled/internal/pkg/errors"
)

// MaxPacketSize is the largest datagram the dispatcher sends.
const MaxPacketSize = 512

// HeartbeatToken is written to the supervisor pipe once per loop iteration.
const HeartbeatToken = "alive"

// OpenSocket adopts the inherited datagram socket named by cfg.SocketFD or,
// when there is none, binds cfg.Port on the loopback interface.
func OpenSocket(cfg Config) (net.PacketConn, error) {
	if cfg.SocketFD >= 0 {
		return adoptSocket(cfg.SocketFD)
	}
	pc, err := net.ListenPacket("udp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeTransport, "worker.socket", "bind port")
	}
	return pc, nil
}

func adoptSocket(fd int) (net.PacketConn, error) {
	typ, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "worker.socket",
			fmt.Sprintf("fd %d is not a socket", fd))
	}
	if typ != unix.SOCK_DGRAM {
		return nil, errors.Configurationf("fd %d is not a datagram socket (type %d)", fd, typ)
	}

	f := os.NewFile(uintptr(fd), "dispatcher-socket")
	defer f.Close()

	// FilePacketConn works on a dup, so closing f leaves the socket open.
	pc, err := net.FilePacketConn(f)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeTransport, "worker.socket", "adopt socket")
	}
	return pc, nil
}

// OpenHeartbeat returns the inherited supervisor pipe, or nil when fd < 0.
func OpenHeartbeat(fd int) io.WriteCloser {
	if fd < 0 {
		return nil
	}
	return os.NewFile(uintptr(fd), "supervisor-pipe")
}
