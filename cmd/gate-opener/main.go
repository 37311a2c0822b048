// Command gate-opener exposes a gate motor controller as a HomeKit garage
// door opener and publishes its state changes to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	haplog "github.com/brutella/hap/log"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v2"

	"github.com/sweeney/homekit-gate/internal/bridge"
	"github.com/sweeney/homekit-gate/internal/config"
	"github.com/sweeney/homekit-gate/internal/gpio"
	"github.com/sweeney/homekit-gate/internal/homekit"
	"github.com/sweeney/homekit-gate/internal/logging"
	"github.com/sweeney/homekit-gate/internal/model"
	"github.com/sweeney/homekit-gate/internal/mqtt"
	"github.com/sweeney/homekit-gate/internal/network"
	"github.com/sweeney/homekit-gate/internal/status"
	"github.com/sweeney/homekit-gate/internal/store"
	"github.com/sweeney/homekit-gate/internal/web"
)

// Interval between status tracker refreshes.
const statusInterval = time.Second

func main() {
	app := &cli.App{
		Name:  "gate-opener",
		Usage: "HomeKit gate opener",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file (GATE_* variables override it)",
				EnvVars: []string{"GATE_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging, including HAP traffic",
			},
			&cli.BoolFlag{
				Name:  "print-state",
				Usage: "print one sensor snapshot and exit",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"), nil)
			if err != nil {
				return err
			}
			if c.Bool("debug") {
				cfg.Logging.Level = "debug"
				haplog.Debug.Enable()
			}
			logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			if c.Bool("print-state") {
				return printState(cfg, logger, os.Stdout)
			}
			return run(cfg, logger)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal("fatal", "err", err)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	if cfg.Network.SSID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Network.Timeout)
		conn := &network.InterfaceConnector{Interface: cfg.Network.Interface}
		ip, err := conn.Connect(ctx, cfg.Network.SSID, network.Credentials{Passphrase: cfg.Network.Passphrase})
		cancel()
		if err != nil {
			return fmt.Errorf("network: %w", err)
		}
		logger.Info("network up", "interface", cfg.Network.Interface, "ip", ip)
	}

	client, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		BacklogSize: cfg.MQTT.Backlog,
	}, logging.Component(logger, "mqtt"))
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	drv, err := openDriver(cfg, client, logger)
	if err != nil {
		return err
	}
	defer drv.Close()

	st := store.New(model.Definitions(cfg.Identity()))

	// Tracker first so the STARTUP snapshot is available.
	tracker := status.NewTracker(time.Now(), status.Config{
		Driver:     cfg.Driver.Kind,
		PollMs:     cfg.Door.Poll.Milliseconds(),
		DebounceMs: cfg.Door.Debounce.Milliseconds(),
		TimeoutMs:  cfg.Door.Timeout.Milliseconds(),
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.HTTP.Addr,
		HAPAddr:    cfg.HomeKit.Addr,
	})
	st.Subscribe(tracker.Observe)
	tracker.SetNetwork(network.FromEnv(nil))

	fwd := mqtt.NewForwarder(client, 256, logging.Component(logger, "forward"))
	st.Subscribe(fwd.Observe)

	br := bridge.New(st, drv, bridge.Config{
		OperationTimeout: cfg.Door.Timeout,
		LockTimeout:      cfg.Door.LockTimeout,
		Debounce:         cfg.Door.Debounce,
	}, logging.Component(logger, "bridge"))
	defer br.Detach()

	acc := homekit.NewAccessory(st, logging.Component(logger, "homekit"))
	defer acc.Close()
	hk, err := homekit.NewServer(homekit.ServerConfig{
		Addr:       cfg.HomeKit.Addr,
		Pin:        cfg.HomeKit.Pin,
		StorageDir: cfg.HomeKit.StorageDir,
	}, acc, logging.Component(logger, "homekit"))
	if err != nil {
		return fmt.Errorf("init homekit: %w", err)
	}

	client.OnReconnect(func() {
		if remote, ok := drv.(*mqtt.RemoteDriver); ok {
			remote.Ping()
		}
		tracker.SetMQTTConnected(true)
		publishSystem(client, tracker, logger, "RECONNECTED", "", false)
	})

	publishSystem(client, tracker, logger, "STARTUP", "", true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	poll := time.NewTicker(cfg.Door.Poll)
	defer poll.Stop()

	wg.Add(3)
	go func() {
		defer wg.Done()
		br.Run(ctx, poll.C)
	}()
	go func() {
		defer wg.Done()
		fwd.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := hk.ListenAndServe(ctx); err != nil {
			logger.Error("homekit server error", "err", err)
		}
	}()

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, st, logging.Component(logger, "http"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	logger.Info("started",
		"driver", cfg.Driver.Kind,
		"poll", cfg.Door.Poll,
		"debounce", cfg.Door.Debounce,
		"timeout", cfg.Door.Timeout,
		"broker", cfg.MQTT.Broker,
	)

	statusTick := time.NewTicker(statusInterval)
	defer statusTick.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(loopDeps{
		publisher: client,
		conn:      client,
		tracker:   tracker,
		ready:     br.Ready,
		paired:    hk.Paired,
		log:       logger,
	}, statusTick.C, sigCh)

	// Stop the motor and flush queued events before the broker goes away.
	cancel()
	wg.Wait()
	return err
}

// openDriver returns the actuation driver selected by cfg.Driver.Kind.
func openDriver(cfg *config.Config, transport mqtt.Transport, logger *log.Logger) (gpio.Driver, error) {
	switch cfg.Driver.Kind {
	case config.DriverMQTT:
		drv, err := mqtt.NewRemoteDriver(transport, mqtt.RemoteConfig{
			StaleAfter: cfg.MQTT.StaleAfter,
			Travel:     cfg.MQTT.Travel,
		}, logging.Component(logger, "remote"))
		if err != nil {
			return nil, fmt.Errorf("init remote driver: %w", err)
		}
		return drv, nil
	case config.DriverGPIO:
		drv, err := gpio.NewRealDriver(cfg.Driver.Chip, cfg.GPIOPins())
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		return drv, nil
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Driver.Kind)
}

type loopDeps struct {
	publisher mqtt.Publisher
	conn      mqtt.ConnectionStatus
	tracker   *status.Tracker
	ready     func() bool
	paired    func() bool
	log       *log.Logger
}

// runLoop keeps the status tracker current until a signal arrives, then
// publishes SHUTDOWN.
func runLoop(d loopDeps, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			d.log.Info("shutting down", "signal", s)
			refresh(d)
			publishSystem(d.publisher, d.tracker, d.log, "SHUTDOWN", signalName(s), true)
			return nil

		case <-tick:
			refresh(d)
		}
	}
}

func refresh(d loopDeps) {
	if d.ready != nil {
		d.tracker.SetReady(d.ready())
	}
	if d.paired != nil {
		d.tracker.SetPaired(d.paired())
	}
	if d.conn != nil {
		d.tracker.SetMQTTConnected(d.conn.IsConnected())
	}
}

func publishSystem(pub mqtt.Publisher, tracker *status.Tracker, logger *log.Logger, event, reason string, retained bool) {
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := pub.PublishSystem(ev); err != nil {
		logger.Warn("failed to publish system event", "event", event, "err", err)
		return
	}
	logger.Info("published system event", "event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// printState reads one valid sensor snapshot and writes it to w.
func printState(cfg *config.Config, logger *log.Logger, w io.Writer) error {
	var transport mqtt.Transport
	if cfg.Driver.Kind == config.DriverMQTT {
		client, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID + "-print",
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			BacklogSize: 1,
		}, logger)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer client.Close()
		transport = client
	}

	drv, err := openDriver(cfg, transport, logger)
	if err != nil {
		return err
	}
	defer drv.Close()

	snap, err := waitForSnapshot(drv, 100*time.Millisecond, 5*time.Second)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, formatSnapshot(snap))
	return nil
}

// waitForSnapshot polls drv until it reports a valid snapshot or timeout
// elapses.
func waitForSnapshot(drv gpio.Driver, every, timeout time.Duration) (gpio.SensorSnapshot, error) {
	deadline := time.Now().Add(timeout)
	for {
		snap, err := drv.PollSensors()
		if err != nil {
			return snap, fmt.Errorf("read sensors: %w", err)
		}
		if snap.Valid {
			return snap, nil
		}
		if time.Now().After(deadline) {
			return snap, errors.New("no sensor report before timeout")
		}
		time.Sleep(every)
	}
}

func formatSnapshot(s gpio.SensorSnapshot) string {
	door := "BETWEEN"
	switch {
	case s.FullyOpen && s.FullyClosed:
		door = "INVALID"
	case s.FullyOpen:
		door = "OPEN"
	case s.FullyClosed:
		door = "CLOSED"
	}
	lock := "UNKNOWN"
	if s.LockKnown {
		lock = status.LockName(model.LockUnsecured)
		if s.Locked {
			lock = status.LockName(model.LockSecured)
		}
	}
	return fmt.Sprintf("door: %s, obstructed: %s, fault: %s, lock: %s",
		door, yesNo(s.Obstructed), yesNo(s.Fault), lock)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
