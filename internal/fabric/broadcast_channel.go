package fabric

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/jalas-labs/ripflow/internal/core"
)

// subscriberBuffer bounds how many frames a broadcast channel will queue
// for a single slow subscriber before dropping its oldest undelivered
// frame. The publisher itself never blocks on a subscriber.
const subscriberBuffer = 64

// broadcastChannel implements PUB/SUB over TCP. The bind (publisher)
// side accepts unlimited subscriber connections and fans every
// published frame out to all of them; a subscriber whose outbound queue
// is full has its oldest queued frame dropped rather than stalling the
// publisher, realizing the "drop slow subscribers" PUB semantics.
type broadcastChannel struct {
	address  string
	listener net.Listener
	conn     net.Conn // set on the connect (subscriber) side

	mu          sync.Mutex
	subscribers []chan []byte
	closed      bool

	recvCh chan []byte
}

func newBroadcastChannel(spec ChannelSpec, bind bool) (*broadcastChannel, error) {
	addr, err := tcpAddress(spec.Address, bind)
	if err != nil {
		return nil, &core.ConfigError{Field: "address", Reason: err.Error()}
	}

	bc := &broadcastChannel{address: spec.Address}

	if bind {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, &core.TransportFault{Address: spec.Address, Cause: err}
		}
		bc.listener = l
		go bc.acceptLoop()
		return bc, nil
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, &core.TransportFault{Address: spec.Address, Cause: err}
	}
	bc.conn = conn
	bc.recvCh = make(chan []byte, subscriberBuffer)
	go bc.subscriberReadLoop()
	return bc, nil
}

// tcpAddress turns "tcp://*:<port>" (bind) or "tcp://host:<port>"
// (connect) into a net.Listen/net.Dial address string.
func tcpAddress(address string, bind bool) (string, error) {
	rest, ok := strings.CutPrefix(address, "tcp://")
	if !ok {
		return "", fmt.Errorf("address %q is not a tcp:// address", address)
	}
	if bind {
		rest = strings.Replace(rest, "*", "", 1)
	}
	if rest == "" || rest == ":" {
		return "", fmt.Errorf("tcp address %q has no port", address)
	}
	return rest, nil
}

func (bc *broadcastChannel) acceptLoop() {
	for {
		conn, err := bc.listener.Accept()
		if err != nil {
			return
		}
		bc.addSubscriber(conn)
	}
}

func (bc *broadcastChannel) addSubscriber(conn net.Conn) {
	ch := make(chan []byte, subscriberBuffer)

	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		conn.Close()
		return
	}
	bc.subscribers = append(bc.subscribers, ch)
	bc.mu.Unlock()

	go func() {
		defer conn.Close()
		for frame := range ch {
			var header [4]byte
			binary.BigEndian.PutUint32(header[:], uint32(len(frame)))
			if _, err := conn.Write(header[:]); err != nil {
				return
			}
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
	}()
}

// Send publishes frame to every currently connected subscriber. A
// subscriber whose channel is full gets its oldest pending frame
// dropped to make room, so Send never blocks on a slow reader.
func (bc *broadcastChannel) Send(frame []byte) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.closed {
		return &core.TransportFault{Address: bc.address, Cause: fmt.Errorf("channel closed")}
	}
	for _, ch := range bc.subscribers {
		select {
		case ch <- frame:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
	return nil
}

func (bc *broadcastChannel) subscriberReadLoop() {
	r := bufio.NewReader(bc.conn)
	for {
		frame, err := readFrame(r)
		if err != nil {
			return
		}
		bc.recvCh <- frame
	}
}

// Receive is only meaningful on the connect (subscriber) side.
func (bc *broadcastChannel) Receive() ([]byte, error) {
	if bc.recvCh == nil {
		return nil, &core.ConfigError{Field: "role", Reason: "Receive is not valid on a PUB-bind channel"}
	}
	frame, ok := <-bc.recvCh
	if !ok {
		return nil, &core.TransportFault{Address: bc.address, Cause: fmt.Errorf("channel closed")}
	}
	return frame, nil
}

func (bc *broadcastChannel) Close() error {
	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		return nil
	}
	bc.closed = true
	subs := bc.subscribers
	bc.subscribers = nil
	bc.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
	if bc.listener != nil {
		bc.listener.Close()
	}
	if bc.conn != nil {
		bc.conn.Close()
	}
	return nil
}
