package pd

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// DefaultPort is the well-known PD UDP port (§6).
const DefaultPort = 17224

// socket wraps a UDP connection with IPv4 control-message support so the
// receive path can learn the datagram's destination IP (distinguishing
// multicast groups) and the transmit path can pin an outgoing interface.
// Grounded on the teacher's liveness.UDPConn.
type socket struct {
	raw   *net.UDPConn
	pc4   *ipv4.PacketConn
	group net.IP // non-nil if this socket has joined a multicast group
	refs  int    // number of elements currently using this socket
}

func listenSocket(bindIP string, port int) (*socket, error) {
	laddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", bindIP, port))
	if err != nil {
		return nil, err
	}
	raw, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, err
	}
	s, err := newSocket(raw)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return s, nil
}

func newSocket(raw *net.UDPConn) (*socket, error) {
	s := &socket{raw: raw, pc4: ipv4.NewPacketConn(raw)}
	if err := s.pc4.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst|ipv4.FlagSrc, true); err != nil {
		return nil, err
	}
	return s, nil
}

// joinGroup joins a multicast group on the given interface (empty iface
// means "let the kernel pick").
func (s *socket) joinGroup(group net.IP, iface string) error {
	var ifi *net.Interface
	if iface != "" {
		var err error
		ifi, err = net.InterfaceByName(iface)
		if err != nil {
			return err
		}
	}
	if err := s.pc4.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
		return err
	}
	s.group = group
	return nil
}

func (s *socket) leaveGroup() error {
	if s.group == nil {
		return nil
	}
	return s.pc4.LeaveGroup(nil, &net.UDPAddr{IP: s.group})
}

func (s *socket) Close() error { return s.raw.Close() }

// readFrom reads one datagram, returning the source address and port,
// the datagram's destination IP (to distinguish multicast groups), and
// the receiving interface name.
func (s *socket) readFrom(buf []byte) (n int, srcIP net.IP, srcPort int, dstIP net.IP, ifname string, err error) {
	n, cm, raddr, err := s.pc4.ReadFrom(buf)
	if err != nil {
		return 0, nil, 0, nil, "", err
	}
	if ua, ok := raddr.(*net.UDPAddr); ok {
		srcIP = ua.IP
		srcPort = ua.Port
	}
	if cm != nil {
		if cm.Dst != nil {
			dstIP = cm.Dst
		}
		if cm.IfIndex != 0 {
			ifname = defaultIfCache.NameByIndex(cm.IfIndex)
		}
	}
	return n, srcIP, srcPort, dstIP, ifname, nil
}

// writeTo sends pkt to dst, optionally pinning the source IP (used when
// replying from the address a subscriber expects).
func (s *socket) writeTo(pkt []byte, dst net.IP, port int, src net.IP) (int, error) {
	if dst == nil {
		return 0, errors.New("pd: nil destination")
	}
	var cm ipv4.ControlMessage
	if src != nil {
		if s4 := src.To4(); s4 != nil {
			cm.Src = s4
		}
	}
	return s.pc4.WriteTo(pkt, &cm, &net.UDPAddr{IP: dst, Port: port})
}

func (s *socket) SetReadDeadline(t time.Time) error { return s.raw.SetReadDeadline(t) }

// socketTable tracks the sockets a session has open: index 0 is always
// the session's primary unicast/bound socket; subsequent entries are
// multicast-group sockets, refcounted by JoinGroup and Leave so that the
// last Leave for a group leaves it and closes its socket (§6).
// Session.Subscribe and Unsubscribe do not call JoinGroup or Leave.
type socketTable struct {
	mu      sync.Mutex
	sockets []*socket
}

func newSocketTable(primary *socket) *socketTable {
	return &socketTable{sockets: []*socket{primary}}
}

// Get returns the socket at idx, or nil if out of range / removed.
func (t *socketTable) Get(idx int) *socket {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.sockets) {
		return nil
	}
	return t.sockets[idx]
}

// JoinGroup returns the index of the socket for this multicast group,
// joining it (and allocating a new table slot) on the first call for
// that group, or bumping the refcount if already joined.
func (t *socketTable) JoinGroup(bindIP string, port int, group net.IP, iface string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.sockets {
		if s != nil && s.group != nil && s.group.Equal(group) {
			s.refs++
			return i, nil
		}
	}
	s, err := listenSocket(bindIP, port)
	if err != nil {
		return -1, err
	}
	if err := s.joinGroup(group, iface); err != nil {
		_ = s.Close()
		return -1, err
	}
	s.refs = 1
	t.sockets = append(t.sockets, s)
	return len(t.sockets) - 1, nil
}

// Leave decrements the refcount for idx and closes/clears the socket
// when it reaches zero. idx 0 (the primary socket) is never closed here.
func (t *socketTable) Leave(idx int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx <= 0 || idx >= len(t.sockets) || t.sockets[idx] == nil {
		return
	}
	s := t.sockets[idx]
	s.refs--
	if s.refs <= 0 {
		_ = s.leaveGroup()
		_ = s.Close()
		t.sockets[idx] = nil
	}
}

// Active returns the indices of all currently open sockets.
func (t *socketTable) Active() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, 0, len(t.sockets))
	for i, s := range t.sockets {
		if s != nil {
			out = append(out, i)
		}
	}
	return out
}

func (t *socketTable) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sockets {
		if s != nil {
			_ = s.Close()
		}
	}
}
