// Command devicestatusd recognises motion and touch gestures, publishes them to MQTT
// and serves cross-device cooperation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/devicestatus/internal/config"
	"github.com/sweeney/devicestatus/internal/cooperate"
	"github.com/sweeney/devicestatus/internal/dbusapi"
	"github.com/sweeney/devicestatus/internal/dsoftbus"
	"github.com/sweeney/devicestatus/internal/input"
	"github.com/sweeney/devicestatus/internal/logging"
	"github.com/sweeney/devicestatus/internal/motion"
	"github.com/sweeney/devicestatus/internal/mqtt"
	"github.com/sweeney/devicestatus/internal/permission"
	"github.com/sweeney/devicestatus/internal/profile"
	"github.com/sweeney/devicestatus/internal/sensor"
	"github.com/sweeney/devicestatus/internal/status"
	"github.com/sweeney/devicestatus/internal/touch"
	"github.com/sweeney/devicestatus/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Config file (.toml, .yaml or .json); built-in defaults when empty")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	printState := flag.Bool("print-state", false, "Print one round of sensor samples and exit")

	flag.Parse()

	o := overrides{broker: *broker, httpAddr: *httpAddr, logLevel: *logLevel}
	if err := run(*configPath, o, *printState); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// overrides are command line values that take precedence over the config file.
type overrides struct {
	broker   string
	httpAddr string
	logLevel string
}

func (o overrides) apply(cfg *config.Config) {
	if o.broker != "" {
		cfg.MQTT.Broker = o.broker
	}
	switch o.httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = o.httpAddr
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
}

func run(configPath string, o overrides, printState bool) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	reader, err := openSensors(cfg.Sensors)
	if err != nil {
		return fmt.Errorf("init sensors: %w", err)
	}
	defer reader.Close()

	if printState {
		samples, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read sensors: %w", err)
		}
		for _, s := range samples {
			fmt.Println(formatSample(s))
		}
		return nil
	}

	types, err := cfg.GestureTypes()
	if err != nil {
		return err
	}

	publisher, err := mqtt.NewRealPublisher(mqtt.Config{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Device:     cfg.Device,
		BufferSize: cfg.MQTT.BufferSize,
	}, log.Named("mqtt"))
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Tracker exists before STARTUP so the HTTP view is never empty.
	tracker := status.NewTracker(time.Now(), status.Config{
		Device:   cfg.Device,
		PollMs:   cfg.Sensors.Poll().Milliseconds(),
		Broker:   cfg.MQTT.Broker,
		HTTPAddr: cfg.HTTP.Addr,
		Gestures: cfg.Gestures,
		Evdev:    cfg.Input.Evdev,
	})

	var hub *web.Hub
	if cfg.HTTP.Addr != "" {
		hub = web.NewHub(log.Named("web"))
	}

	dispatcher, err := newDispatcher(cfg.Motion, types, log.Named("motion"))
	if err != nil {
		return err
	}
	sink := &gestureSink{publisher: publisher, tracker: tracker, now: time.Now, log: log}
	if hub != nil {
		sink.live = hub
	}
	for _, t := range types {
		dispatcher.Subscribe(t, sink)
	}

	d := &daemon{
		log:        log,
		sensors:    reader,
		dispatcher: dispatcher,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
	}

	if cfg.Input.Evdev != "" {
		det := touch.NewDetector(cfg.Touch)
		det.RegisterCallback(dispatcher.Publish)
		d.touch = touch.NewRunner(det, cfg.Touch.QueueSize, log.Named("touch"))

		src, err := input.OpenEvdev(cfg.Input.Evdev, cfg.Touch.ScreenWidth, cfg.Touch.ScreenHeight, cfg.Input.Grab)
		if err != nil {
			return fmt.Errorf("init touch input: %w", err)
		}
		defer src.Close()
		d.input = src
	}

	var perms *permission.Static
	if cfg.Cooperate.Enabled {
		perms = permission.NewStatic(cfg.Cooperate.SystemUIDs, cfg.Cooperate.GrantedUIDs)
		coop, cleanup, err := startCooperate(cfg, perms, &cooperateSink{
			publisher: publisher,
			tracker:   tracker,
			now:       time.Now,
			log:       log,
		}, log.Named("cooperate"))
		if err != nil {
			return fmt.Errorf("init cooperate: %w", err)
		}
		defer cleanup()
		d.cursor = coop.HandlePointer
	}

	startupEvent := mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     "STARTUP",
		Retained:  true,
		Config: &mqtt.SystemConfig{
			PollMs:    cfg.Sensors.Poll().Milliseconds(),
			Broker:    cfg.MQTT.Broker,
			Gestures:  cfg.Gestures,
			Cooperate: cfg.Cooperate.Enabled,
		},
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warnw("main: failed to publish startup event", "err", err)
	} else {
		log.Infow("main: published startup event")
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, hub, log.Named("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("web: server error", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Infow("web: status server listening", "addr", cfg.HTTP.Addr)
	}

	loader.OnChange(func(next *config.Config) {
		dispatcher.ApplyConfig(next.Motion)
		if d.touch != nil {
			d.touch.ApplyConfig(next.Touch)
		}
		if perms != nil {
			perms.Set(next.Cooperate.SystemUIDs, next.Cooperate.GrantedUIDs)
		}
		log.Infow("config: reloaded", "path", configPath)
	})
	if configPath != "" {
		if err := loader.Watch(); err != nil {
			log.Warnw("config: watch disabled", "path", configPath, "err", err)
		} else {
			d.configErrs = loader.Errors()
		}
	}
	defer loader.Close()

	log.Infow("main: started",
		"device", cfg.Device,
		"poll", cfg.Sensors.Poll(),
		"broker", cfg.MQTT.Broker,
		"gestures", cfg.Gestures,
		"touch", cfg.Input.Evdev != "",
		"cooperate", cfg.Cooperate.Enabled,
	)

	ticker := time.NewTicker(cfg.Sensors.Poll())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return serve(context.Background(), d, time.Now, ticker.C, sigCh)
}

// openSensors builds a reader over every configured sensor source.
func openSensors(cfg config.SensorsConfig) (sensor.Reader, error) {
	var readers sensor.Multi
	if cfg.AccelDir != "" || cfg.LightDir != "" || cfg.ProximityDir != "" {
		r, err := sensor.NewIIOReader(sensor.IIOConfig{
			AccelDir:         cfg.AccelDir,
			LightDir:         cfg.LightDir,
			ProximityDir:     cfg.ProximityDir,
			ProximityNearRaw: cfg.ProximityNearRaw,
		})
		if err != nil {
			return nil, err
		}
		readers = append(readers, r)
	}
	if cfg.GPIOLine >= 0 {
		r, err := sensor.NewGPIOProximity(cfg.GPIOChip, cfg.GPIOLine)
		if err != nil {
			readers.Close()
			return nil, err
		}
		readers = append(readers, r)
	}
	return readers, nil
}

func formatSample(s motion.SensorSample) string {
	switch s.Kind {
	case motion.KindAccelerometer:
		return fmt.Sprintf("%s: x=%.2f y=%.2f z=%.2f", s.Kind, s.X, s.Y, s.Z)
	case motion.KindProximity:
		return fmt.Sprintf("%s: distance=%.1fcm", s.Kind, s.Distance)
	case motion.KindAmbientLight:
		return fmt.Sprintf("%s: lux=%.1f", s.Kind, s.Lux)
	}
	return s.Kind.String()
}

// newDispatcher enables every configured gesture type.
func newDispatcher(cfg motion.Config, types []motion.GestureType, log *zap.SugaredLogger) (*motion.Dispatcher, error) {
	d := motion.NewDispatcher(cfg, log)
	for _, t := range types {
		if err := d.Enable(t); err != nil {
			return nil, fmt.Errorf("enable %s: %w", t, err)
		}
	}
	return d, nil
}

// startCooperate wires the cooperate service to the softbus transport, the profile
// store and, when configured, D-Bus. The returned func releases all of them.
func startCooperate(cfg *config.Config, perms permission.Checker, obs cooperate.Observer, log *zap.SugaredLogger) (*cooperate.Cooperate, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	bus, err := dsoftbus.NewMQTT(dsoftbus.MQTTConfig{
		Broker:      cfg.MQTT.Broker,
		NetworkID:   cfg.Cooperate.NetworkID,
		TopicPrefix: cfg.MQTT.SoftbusPrefix,
	}, log.Named("softbus"))
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() { bus.Close() })

	if err := os.MkdirAll(filepath.Dir(cfg.Profile.Path), 0o755); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("profile dir: %w", err)
	}
	store, err := profile.Open(cfg.Profile.Path)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() { store.Close() })

	var (
		conn     *dbus.Conn
		notifier cooperate.Notifier
	)
	if cfg.Cooperate.DBus != "off" {
		c, err := dbusapi.Connect(cfg.Cooperate.DBus)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		conn = c
		closers = append(closers, func() { c.Close() })
		notifier = dbusapi.NewSignals(c, log.Named("dbus"))
	}

	coop, err := cooperate.New(cooperate.Options{
		Transport:       bus,
		Profiles:        store,
		Permissions:     perms,
		Notifier:        notifier,
		Injector:        cursorLogger{log: log},
		LocalUdID:       cfg.Cooperate.UdID,
		ResponseTimeout: cfg.Cooperate.ResponseTimeout(),
		ChannelCapacity: cfg.Cooperate.ChannelCapacity,
		ScreenWidth:     int32(cfg.Touch.ScreenWidth),
		ScreenHeight:    int32(cfg.Touch.ScreenHeight),
		HotAreaWidth:    int32(cfg.Cooperate.HotAreaWidth),
		Log:             log,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() { coop.Close() })
	coop.AddObserver(obs)

	if conn != nil {
		svc := dbusapi.NewService(coop, dbusapi.NewBusCredentials(conn), cfg.Cooperate.ResponseTimeout(), log.Named("dbus"))
		if err := dbusapi.Export(conn, svc); err != nil {
			cleanup()
			return nil, nil, err
		}
		log.Infow("dbus: service exported", "name", dbusapi.ServiceName, "bus", cfg.Cooperate.DBus)
	}

	restoreSwitch(coop, store, cfg.Cooperate.UdID, log)
	return coop, cleanup, nil
}

// restoreSwitch re-enables cooperation if the local device's switch was left on.
func restoreSwitch(coop *cooperate.Cooperate, profiles cooperate.Profiles, udid string, log *zap.SugaredLogger) {
	if udid == "" {
		return
	}
	on, err := profiles.CooperateSwitchByUdID(udid)
	if err != nil || !on {
		return
	}
	self := cooperate.Caller{TokenID: uint32(os.Getuid()), Pid: int32(os.Getpid())}
	if err := coop.Enable(self, 0); err != nil {
		log.Warnw("cooperate: could not restore switch", "udid", udid, "err", err)
		return
	}
	log.Infow("cooperate: switch restored", "udid", udid)
}

// cursorLogger stands in for a pointer injector on devices without uinput access.
type cursorLogger struct {
	log *zap.SugaredLogger
}

func (c cursorLogger) Inject(x, y int32) {
	c.log.Debugw("cooperate: inject pointer", "x", x, "y", y)
}

// gestureSink fans a dispatcher result out to MQTT, the status tracker and the
// live view.
type gestureSink struct {
	publisher mqtt.Publisher
	tracker   *status.Tracker
	live      motion.Listener
	now       func() time.Time
	log       *zap.SugaredLogger
}

func (s *gestureSink) OnMotionChanged(res motion.Result) {
	at := s.now()
	s.log.Infow("motion: gesture", "type", res.Type, "value", res.Value, "status", res.Status)
	s.tracker.RecordGesture(res, at)
	if err := s.publisher.Publish(mqtt.MotionEvent{Timestamp: at, Result: res}); err != nil {
		// Don't crash on publish failure
		s.log.Warnw("mqtt: publish error", "type", res.Type, "err", err)
	}
	if s.live != nil {
		s.live.OnMotionChanged(res)
	}
}

// cooperateSink mirrors cooperate transitions into the tracker and onto MQTT.
type cooperateSink struct {
	publisher mqtt.Publisher
	tracker   *status.Tracker
	now       func() time.Time
	log       *zap.SugaredLogger
}

func (s *cooperateSink) OnStateChanged(c cooperate.StateChange) {
	s.tracker.SetCooperate(c.To.String(), c.Role.String(), c.NetworkID)
	err := s.publisher.PublishCooperate(mqtt.CooperateEvent{
		Timestamp: s.now(),
		From:      c.From.String(),
		To:        c.To.String(),
		Role:      c.Role.String(),
		Peer:      c.NetworkID,
	})
	if err != nil {
		s.log.Warnw("mqtt: cooperate publish error", "err", err)
	}
}

// daemon holds what the run loops touch. Optional parts are nil when disabled.
type daemon struct {
	log        *zap.SugaredLogger
	sensors    sensor.Reader
	dispatcher *motion.Dispatcher
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker

	touch      *touch.Runner
	input      input.Source
	cursor     func(x, y int32)
	configErrs <-chan error
}

// serve runs the input and config goroutines under an errgroup and polls sensors
// until a signal arrives or a goroutine fails.
func serve(ctx context.Context, d *daemon, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if d.touch != nil {
		d.touch.Start(gctx)
		defer d.touch.Stop()
	}

	if d.input != nil {
		h := input.Handler{Cursor: d.cursor}
		if d.touch != nil {
			h.Touch = func(s touch.PointerSample) { d.touch.Push(s) }
		}
		g.Go(func() error {
			if err := d.input.Run(gctx, h); err != nil {
				return fmt.Errorf("input: %w", err)
			}
			return nil
		})
	}

	if d.configErrs != nil {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case err, ok := <-d.configErrs:
					if !ok {
						return nil
					}
					d.log.Warnw("config: reload rejected, keeping previous config", "err", err)
				}
			}
		})
	}

	runLoop(gctx, d, now, tick, sig)
	cancel()
	return g.Wait()
}

// runLoop polls the sensors on every tick and feeds the dispatcher. It publishes
// SHUTDOWN and returns on a signal, or when ctx ends because a sibling failed.
func runLoop(ctx context.Context, d *daemon, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) {
	for {
		select {
		case s := <-sig:
			d.log.Infow("main: received signal, shutting down", "signal", s)
			d.shutdown(now(), signalName(s))
			return

		case <-ctx.Done():
			d.log.Errorw("main: worker failed, shutting down", "err", context.Cause(ctx))
			d.shutdown(now(), "FAILURE")
			return

		case <-tick:
			samples, err := d.sensors.Read()
			if err != nil {
				d.log.Warnw("sensor: read error", "err", err)
				if d.tracker != nil {
					d.tracker.AddSensorError()
				}
			}
			for _, s := range samples {
				d.dispatcher.HandleSensor(s)
			}
			d.refreshStatus()
		}
	}
}

func (d *daemon) refreshStatus() {
	if d.tracker == nil {
		return
	}
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	if d.touch != nil {
		d.tracker.SetTouchDropped(uint64(d.touch.Dropped()))
	}
}

func (d *daemon) shutdown(at time.Time, reason string) {
	d.refreshStatus()
	event := mqtt.SystemEvent{
		Timestamp: at,
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		d.log.Warnw("main: failed to publish shutdown event", "err", err)
	} else {
		d.log.Infow("main: published shutdown event", "reason", reason)
	}
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
