// Package network reports the host's network state and provides the
// connect boundary used at startup. Association and IP acquisition are done
// by the OS (or pi-helper); this package only waits for and reports them.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v10"
)

var (
	// ErrNoAddress is returned when the interface has no usable IPv4 address.
	ErrNoAddress = errors.New("network: no IPv4 address")
	// ErrSSIDMismatch is returned when the associated network is not the
	// configured one.
	ErrSSIDMismatch = errors.New("network: associated to a different SSID")
)

// Info is the network state written by pi-helper to /run/pi-helper.env and
// exposed to the service as environment variables.
type Info struct {
	Type       string `env:"NETWORK_TYPE"`
	IP         string `env:"NETWORK_IP"`
	Status     string `env:"NETWORK_STATUS"`
	Gateway    string `env:"NETWORK_GATEWAY"`
	WifiStatus string `env:"NETWORK_WIFI_STATUS"`
	SSID       string `env:"NETWORK_WIFI_SSID"`
}

// FromEnv reads Info from environ, or from the process environment when
// environ is nil. It returns nil when no network status has been published.
func FromEnv(environ map[string]string) *Info {
	var info Info
	if err := env.ParseWithOptions(&info, env.Options{Environment: environ}); err != nil {
		return nil
	}
	if info.Status == "" {
		return nil
	}
	return &info
}

// Credentials authenticate against a wireless network.
type Credentials struct {
	Passphrase string
}

// Connector brings the network up and returns the acquired address. It
// does not retry; callers decide what to do on failure.
type Connector interface {
	Connect(ctx context.Context, ssid string, creds Credentials) (net.IP, error)
}

// InterfaceConnector waits for an OS-managed interface to come up with an
// IPv4 address. Credentials are ignored; the OS owns association.
type InterfaceConnector struct {
	Interface string
	// Poll is the interval between address checks. Defaults to one second.
	Poll time.Duration

	// Addrs lists the addresses of the named interface. Defaults to the
	// net package; replaced in tests.
	Addrs func(name string) ([]net.Addr, error)
	// Environ returns the current environment for the SSID check.
	Environ func() map[string]string
}

// Connect blocks until the interface has an IPv4 address or ctx is done. If
// ssid is set and pi-helper reports a different SSID, ErrSSIDMismatch is
// returned.
func (c *InterfaceConnector) Connect(ctx context.Context, ssid string, _ Credentials) (net.IP, error) {
	poll := c.Poll
	if poll <= 0 {
		poll = time.Second
	}
	addrs := c.Addrs
	if addrs == nil {
		addrs = interfaceAddrs
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		ip, err := firstIPv4(addrs, c.Interface)
		if err == nil {
			if err := c.checkSSID(ssid); err != nil {
				return nil, err
			}
			return ip, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w on %s: %v", ErrNoAddress, c.Interface, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *InterfaceConnector) checkSSID(ssid string) error {
	if ssid == "" || c.Environ == nil {
		return nil
	}
	info := FromEnv(c.Environ())
	if info == nil || info.SSID == "" || info.SSID == ssid {
		return nil
	}
	return fmt.Errorf("%w: want %q, have %q", ErrSSIDMismatch, ssid, info.SSID)
}

func interfaceAddrs(name string) ([]net.Addr, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return iface.Addrs()
}

func firstIPv4(addrs func(string) ([]net.Addr, error), name string) (net.IP, error) {
	list, err := addrs(name)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() && !ip4.IsLinkLocalUnicast() {
			return ip4, nil
		}
	}
	return nil, ErrNoAddress
}
