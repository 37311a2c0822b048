package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	info := FromEnv(map[string]string{
		"NETWORK_TYPE":        "wifi",
		"NETWORK_IP":          "192.168.1.50",
		"NETWORK_STATUS":      "connected",
		"NETWORK_GATEWAY":     "192.168.1.1",
		"NETWORK_WIFI_STATUS": "associated",
		"NETWORK_WIFI_SSID":   "garden",
	})
	require.NotNil(t, info)
	assert.Equal(t, Info{
		Type:       "wifi",
		IP:         "192.168.1.50",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "associated",
		SSID:       "garden",
	}, *info)
}

func TestFromEnvWithoutStatus(t *testing.T) {
	assert.Nil(t, FromEnv(map[string]string{"NETWORK_IP": "10.0.0.2"}))
	assert.Nil(t, FromEnv(map[string]string{}))
}

func addrs(list ...net.Addr) func(string) ([]net.Addr, error) {
	return func(string) ([]net.Addr, error) { return list, nil }
}

func ipnet(s string) *net.IPNet {
	ip, n, _ := net.ParseCIDR(s)
	n.IP = ip
	return n
}

func TestConnectReturnsFirstUsableIPv4(t *testing.T) {
	c := &InterfaceConnector{
		Interface: "wlan0",
		Addrs: addrs(
			ipnet("fe80::1/64"),
			ipnet("169.254.3.4/16"),
			ipnet("192.168.1.50/24"),
		),
	}
	ip, err := c.Connect(context.Background(), "", Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50", ip.String())
}

func TestConnectWaitsForAddress(t *testing.T) {
	calls := 0
	c := &InterfaceConnector{
		Interface: "wlan0",
		Poll:      time.Millisecond,
		Addrs: func(string) ([]net.Addr, error) {
			calls++
			if calls < 3 {
				return nil, nil
			}
			return []net.Addr{ipnet("10.0.0.7/8")}, nil
		},
	}
	ip, err := c.Connect(context.Background(), "", Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", ip.String())
	assert.Equal(t, 3, calls)
}

func TestConnectHonoursContext(t *testing.T) {
	c := &InterfaceConnector{
		Interface: "wlan0",
		Poll:      time.Millisecond,
		Addrs: func(string) ([]net.Addr, error) {
			return nil, errors.New("no such interface")
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Connect(ctx, "", Credentials{})
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestConnectSSIDMismatch(t *testing.T) {
	c := &InterfaceConnector{
		Interface: "wlan0",
		Addrs:     addrs(ipnet("192.168.1.50/24")),
		Environ: func() map[string]string {
			return map[string]string{"NETWORK_STATUS": "connected", "NETWORK_WIFI_SSID": "neighbour"}
		},
	}
	_, err := c.Connect(context.Background(), "garden", Credentials{})
	assert.ErrorIs(t, err, ErrSSIDMismatch)

	ip, err := c.Connect(context.Background(), "neighbour", Credentials{})
	require.NoError(t, err)
	assert.NotNil(t, ip)
}
