package fabric

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jalas-labs/ripflow/internal/core"
)

// maxFrameLen bounds a single frame so a corrupt length header cannot
// drive an unbounded allocation.
const maxFrameLen = 64 << 20

// dialRetryInterval and dialRetryAttempts bound how long a connect-side
// channel waits for its bind-side peer to start listening. Producer,
// worker and sender processes are launched by the supervisor in no
// particular order, so the connect side routinely starts first.
const (
	dialRetryInterval = 100 * time.Millisecond
	dialRetryAttempts = 50
)

// streamChannel implements PUSH/PULL over a Unix domain socket. Frames
// are length-prefixed: a 4-byte big-endian length header followed by
// that many bytes of payload (msgpack from internal/wire on ingress, the
// sink serializer's output on egress; this package only moves bytes).
//
// The bind side accepts any number of peers, matching the fan-out
// (PUSH-bind to many PULL-connect workers) and fan-in (many PUSH-connect
// workers to one PULL-bind sender) shapes the fabric needs. Send
// round-robins across connected peers; Receive merges frames from all
// connected peers in arrival order, which is fair under even load and
// exact round robin is not required by the ordering invariant (§5: input
// order across workers is explicitly not preserved).
type streamChannel struct {
	address  string
	listener net.Listener

	mu     sync.Mutex
	conns  []net.Conn
	closed bool

	sendIdx atomic.Uint64

	recvCh   chan []byte
	closedCh chan struct{}
}

func newStreamChannel(baseDir string, spec ChannelSpec, bind bool) (*streamChannel, error) {
	path, err := socketPath(baseDir, spec.Address)
	if err != nil {
		return nil, &core.ConfigError{Field: "address", Reason: err.Error()}
	}

	sc := &streamChannel{
		address:  spec.Address,
		recvCh:   make(chan []byte, 256),
		closedCh: make(chan struct{}),
	}

	if bind {
		_ = os.Remove(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &core.TransportFault{Address: spec.Address, Cause: err}
		}
		l, err := net.Listen("unix", path)
		if err != nil {
			return nil, &core.TransportFault{Address: spec.Address, Cause: err}
		}
		sc.listener = l
		go sc.acceptLoop()
		return sc, nil
	}

	conn, err := dialUnixWithRetry(path)
	if err != nil {
		return nil, &core.TransportFault{Address: spec.Address, Cause: err}
	}
	sc.addConn(conn)
	return sc, nil
}

func socketPath(baseDir, address string) (string, error) {
	name, ok := strings.CutPrefix(address, "ipc://")
	if !ok {
		return "", fmt.Errorf("address %q is not an ipc:// address", address)
	}
	if name == "" {
		return "", fmt.Errorf("ipc address has no name")
	}
	return filepath.Join(baseDir, name+".sock"), nil
}

func dialUnixWithRetry(path string) (net.Conn, error) {
	var lastErr error
	for i := 0; i < dialRetryAttempts; i++ {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(dialRetryInterval)
	}
	return nil, fmt.Errorf("dial %s: %w", path, lastErr)
}

func (sc *streamChannel) acceptLoop() {
	for {
		conn, err := sc.listener.Accept()
		if err != nil {
			return
		}
		sc.addConn(conn)
	}
}

func (sc *streamChannel) addConn(conn net.Conn) {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		conn.Close()
		return
	}
	sc.conns = append(sc.conns, conn)
	sc.mu.Unlock()

	go sc.readLoop(conn)
}

func (sc *streamChannel) readLoop(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		frame, err := readFrame(r)
		if err != nil {
			// A peer disconnecting (EOF) or faulting is not fatal to this
			// channel: other peers may still be connected, and the bind
			// side keeps accepting new ones.
			sc.removeConn(conn)
			return
		}
		select {
		case sc.recvCh <- frame:
		default:
			// Ingress is configured lossy-on-overflow by design; a full
			// receive buffer drops the oldest pending frame rather than
			// applying backpressure to the sender.
			select {
			case <-sc.recvCh:
			default:
			}
			sc.recvCh <- frame
		}
	}
}

func (sc *streamChannel) removeConn(conn net.Conn) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for i, c := range sc.conns {
		if c == conn {
			sc.conns = append(sc.conns[:i], sc.conns[i+1:]...)
			break
		}
	}
	conn.Close()
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("frame length %d exceeds maximum %d", n, maxFrameLen)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// Send transmits frame to one connected peer, chosen round robin.
func (sc *streamChannel) Send(frame []byte) error {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return &core.TransportFault{Address: sc.address, Cause: fmt.Errorf("channel closed")}
	}
	if len(sc.conns) == 0 {
		sc.mu.Unlock()
		return &core.TransportFault{Address: sc.address, Cause: fmt.Errorf("no connected peer")}
	}
	idx := int(sc.sendIdx.Add(1)-1) % len(sc.conns)
	conn := sc.conns[idx]
	sc.mu.Unlock()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(frame)))
	if _, err := conn.Write(header[:]); err != nil {
		return &core.TransportFault{Address: sc.address, Cause: err}
	}
	if _, err := conn.Write(frame); err != nil {
		return &core.TransportFault{Address: sc.address, Cause: err}
	}
	return nil
}

// Receive blocks until a frame arrives from any connected peer, or the
// channel is closed.
func (sc *streamChannel) Receive() ([]byte, error) {
	select {
	case frame := <-sc.recvCh:
		return frame, nil
	case <-sc.closedCh:
		return nil, &core.TransportFault{Address: sc.address, Cause: fmt.Errorf("channel closed")}
	}
}

func (sc *streamChannel) Close() error {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return nil
	}
	sc.closed = true
	conns := sc.conns
	sc.conns = nil
	sc.mu.Unlock()
	close(sc.closedCh)

	if sc.listener != nil {
		sc.listener.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	return nil
}
