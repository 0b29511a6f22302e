package portprobe

import (
	"errors"
	"net"
	"strconv"
)

// State reports whether a TCP port is bound on the host.
type State int

const (
	Free State = iota
	Occupied
)

func (s State) String() string {
	if s == Free {
		return "free"
	}
	return "occupied"
}

// ErrProbeFailed wraps bind failures other than "address already in use".
// The port is still reported as Occupied in that case.
var ErrProbeFailed = errors.New("port probe failed")

// Check binds a transient listener on host:port and releases it right away.
// A successful bind means Free. Any bind failure means Occupied; failures that
// are not "address in use" are additionally returned wrapped in ErrProbeFailed.
// The answer is only valid for the instant the probe ran.
func Check(host string, port int) (State, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		if isAddrInUse(err) {
			return Occupied, nil
		}
		return Occupied, errors.Join(ErrProbeFailed, err)
	}
	_ = ln.Close()
	return Free, nil
}

// IsInUse probes port on all interfaces, the same address the server binds by default.
func IsInUse(port int) State {
	st, _ := Check("", port)
	return st
}
