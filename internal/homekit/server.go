package homekit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brutella/hap"
	"github.com/charmbracelet/log"
)

// ErrInvalidPin is returned for a setup code that is not eight digits or is
// one of the trivial codes controllers refuse.
var ErrInvalidPin = errors.New("invalid setup code")

// Codes rejected by HomeKit controllers.
var trivialPins = map[string]bool{
	"00000000": true, "11111111": true, "22222222": true, "33333333": true,
	"44444444": true, "55555555": true, "66666666": true, "77777777": true,
	"88888888": true, "99999999": true, "12345678": true, "87654321": true,
}

// NormalizePin accepts a setup code as 00102003 or 001-02-003 and returns the
// eight digit form.
func NormalizePin(pin string) (string, error) {
	digits := pin
	if strings.Count(pin, "-") == 2 {
		parts := strings.Split(pin, "-")
		if len(parts[0]) != 3 || len(parts[1]) != 2 || len(parts[2]) != 3 {
			return "", fmt.Errorf("%w: %q", ErrInvalidPin, pin)
		}
		digits = strings.Join(parts, "")
	}
	if len(digits) != 8 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPin, pin)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidPin, pin)
		}
	}
	if trivialPins[digits] {
		return "", fmt.Errorf("%w: %q is too simple", ErrInvalidPin, pin)
	}
	return digits, nil
}

// ServerConfig configures the HAP server.
type ServerConfig struct {
	Addr       string // listen address, empty for any port
	Pin        string // setup code, either form accepted by NormalizePin
	StorageDir string // pairing data directory
}

// Server serves one accessory over HAP.
type Server struct {
	hap *hap.Server
	log *log.Logger
}

// NewServer creates a HAP server for acc with pairing data kept in
// cfg.StorageDir.
func NewServer(cfg ServerConfig, acc *Accessory, logger *log.Logger) (*Server, error) {
	pin, err := NormalizePin(cfg.Pin)
	if err != nil {
		return nil, err
	}

	s, err := hap.NewServer(hap.NewFsStore(cfg.StorageDir), acc.A)
	if err != nil {
		return nil, fmt.Errorf("create hap server: %w", err)
	}
	s.Pin = pin
	s.Addr = cfg.Addr

	return &Server{hap: s, log: logger}, nil
}

// ListenAndServe runs the HAP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log.Info("homekit server starting", "addr", s.hap.Addr)
	err := s.hap.ListenAndServe(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Paired reports whether at least one controller is paired.
func (s *Server) Paired() bool {
	return s.hap.IsPaired()
}
