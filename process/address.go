package process

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Address identifies a process in the system.
type Address struct {
	Host        string `json:"host"`
	Port        uint16 `json:"port"`
	ProcessName string `json:"process_name"`
}

var ErrBadAddress = errors.New("bad address")

func NewAddress(host string, port uint16, processName string) Address {
	return Address{Host: host, Port: port, ProcessName: processName}
}

// HostPort returns "host:port" of the node the process lives on.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

func (a Address) String() string {
	return a.HostPort() + "/" + a.ProcessName
}

// ParseAddress parses an address in the "host:port/process" form.
func ParseAddress(s string) (Address, error) {
	hostPort, name, ok := strings.Cut(s, "/")
	if !ok || name == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrBadAddress, s)
	}
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	return NewAddress(host, uint16(port), name), nil
}
