package main

import (
	"fmt"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/vinayprograms/conclave/internal/checkpoint"
	"github.com/vinayprograms/conclave/internal/config"
	"github.com/vinayprograms/conclave/internal/eventbus"
	"github.com/vinayprograms/conclave/internal/execution"
	"github.com/vinayprograms/conclave/internal/session"
	"github.com/vinayprograms/conclave/internal/store"
)

// runtime holds the wired components of one CLI invocation.
type runtime struct {
	cfg         *config.Config
	store       *store.SQLite
	transcripts *session.FileStore
	checkpoints *checkpoint.Store
	bus         eventbus.Publisher
	telem       telemetry.Exporter
	driver      *execution.Driver
	logger      *logging.Logger
	closers     []func()
}

// newRuntime loads configuration and opens storage. listener, when set,
// sees every execution event after the transcript and bus.
func newRuntime(cli *CLI, listener execution.Listener) (*runtime, error) {
	rt := &runtime{logger: logging.New().WithComponent("cli")}
	steps := []func() error{
		func() error { return rt.loadConfig(cli.Config) },
		rt.openStorage,
		rt.setupTelemetry,
		rt.connectBus,
		func() error { return rt.createDriver(listener) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) addCloser(f func()) {
	rt.closers = append(rt.closers, f)
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (rt *runtime) loadConfig(path string) error {
	var err error
	if rt.cfg, err = loadConfig(path); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return nil
}

func (rt *runtime) openStorage() error {
	s, err := store.Open(rt.cfg.DatabasePath())
	if err != nil {
		return err
	}
	rt.store = s
	rt.addCloser(func() { s.Close() })

	if rt.transcripts, err = session.NewFileStore(rt.cfg.TranscriptDir()); err != nil {
		return err
	}
	if dir := rt.cfg.CheckpointDir(); dir != "" {
		if rt.checkpoints, err = checkpoint.NewStore(dir); err != nil {
			return err
		}
	}
	return nil
}

// setupTelemetry creates the telemetry exporter.
func (rt *runtime) setupTelemetry() error {
	var err error
	if rt.cfg.Telemetry.Enabled {
		rt.telem, err = telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("creating telemetry exporter: %w", err)
		}
	} else {
		rt.telem = telemetry.NewNoopExporter()
	}
	rt.addCloser(func() { rt.telem.Close() })
	return nil
}

// connectBus dials NATS when [events].nats_url is set.
func (rt *runtime) connectBus() error {
	if rt.cfg.Events.NATSURL == "" {
		rt.bus = eventbus.Nop{}
		return nil
	}
	bus, err := eventbus.Connect(eventbus.Config{
		URL:    rt.cfg.Events.NATSURL,
		Prefix: rt.cfg.Events.Subject,
	})
	if err != nil {
		return err
	}
	rt.bus = bus
	rt.addCloser(func() { bus.Close() })
	return nil
}

func (rt *runtime) createDriver(listener execution.Listener) error {
	telem := rt.telem
	observe := func(env eventbus.Envelope) {
		telem.LogEvent(env.EventType, map[string]interface{}{
			"execution_id": env.ExecutionID,
			"agent_id":     env.AgentID,
			"sequence":     env.Sequence,
		})
		if listener != nil {
			listener(env)
		}
	}

	d, err := execution.NewDriver(execution.Options{
		Config: rt.cfg,
		Store:  rt.store,
		Models: &execution.Resolver{
			Config: rt.cfg,
			Store:  rt.store,
			Keys:   apiKey,
		},
		Transcripts: rt.transcripts,
		Checkpoints: rt.checkpoints,
		Bus:         rt.bus,
		Listener:    observe,
	})
	if err != nil {
		return err
	}
	rt.driver = d
	return nil
}
