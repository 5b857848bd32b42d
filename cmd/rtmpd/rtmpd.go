// Program rtmpd is a command-line utility for serving and probing RTMP
// endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	log "github.com/sirupsen/logrus"

	"github.com/rtmpkit/rtmp"
	"github.com/rtmpkit/rtmp/conns"
	"github.com/rtmpkit/rtmp/handshake"
)

var flags struct {
	Config string `flag:"config,Path to a TOML configuration file"`
	Listen string `flag:"listen,Address to listen on (overrides the config file)"`
	Debug  bool   `flag:"debug,Enable debug logging"`
}

// config is the TOML file layout for the serve command.
type config struct {
	Listen string `toml:"listen"`
	Debug  bool   `toml:"debug"`

	Bandwidth struct {
		Down uint32 `toml:"down"`
		Up   uint32 `toml:"up"`
	} `toml:"bandwidth"`
}

func main() {
	root := &command.C{
		Name:     filepath.Base(os.Args[0]),
		Help:     "Utilities for serving and probing RTMP endpoints.",
		SetFlags: command.Flags(flax.MustBind, &flags),
		Commands: []*command.C{
			{
				Name: "serve",
				Help: `Accept RTMP connections and log their activity.

Connections are handshaken and then exchange messages through the gob test
codec, with per-connection debug logging of protocol activity.`,
				Run: runServe,
			},
			{
				Name:  "probe",
				Usage: "<address>",
				Help:  "Perform a client handshake against a server and report the round trip.",
				Run:   runProbe,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

// loadConfig merges the config file, flags, and defaults.
func loadConfig() (config, error) {
	var cfg config
	if flags.Config != "" {
		if _, err := toml.DecodeFile(flags.Config, &cfg); err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if flags.Listen != "" {
		cfg.Listen = flags.Listen
	}
	if cfg.Listen == "" {
		cfg.Listen = fmt.Sprintf(":%d", rtmp.DefaultPort)
	}
	cfg.Debug = cfg.Debug || flags.Debug
	return cfg, nil
}

func runServe(env *command.Env) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	lst, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	log.WithField("addr", lst.Addr()).Info("Listening for RTMP connections")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rcfg := rtmp.Config{
		Codec:               conns.GobCodec{},
		Scheduler:           new(rtmp.LoopingScheduler),
		DownstreamBandwidth: cfg.Bandwidth.Down,
		UpstreamBandwidth:   cfg.Bandwidth.Up,
		Debug:               cfg.Debug,
	}
	return conns.Loop(ctx, lst, func(t rtmp.Transport) *rtmp.Conn {
		return rtmp.NewServerConn(t, rcfg)
	})
}

// probeObserver reports the handshake outcome on a channel.
type probeObserver struct {
	done chan error
}

func (p *probeObserver) HandshakeSuccess(trailing []byte) { p.done <- nil }
func (p *probeObserver) HandshakeFailure(err error)       { p.done <- err }

func runProbe(env *command.Env) error {
	if len(env.Args) != 1 {
		return env.Usagef("missing server address")
	}
	addr := env.Args[0]
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = fmt.Sprintf("%s:%d", addr, rtmp.DefaultPort)
	}

	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer nc.Close()

	obs := &probeObserver{done: make(chan error, 1)}
	cli := handshake.NewClient(obs, nc)

	start := time.Now()
	if err := cli.Start(handshake.Options{}); err != nil {
		return err
	}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := nc.Read(buf)
			if n > 0 {
				cli.DataReceived(buf[:n])
			}
			if err != nil {
				obs.done <- fmt.Errorf("read: %w", err)
				return
			}
		}
	}()

	select {
	case err := <-obs.done:
		if err != nil {
			return fmt.Errorf("handshake failed: %w", err)
		}
		fmt.Printf("handshake with %s completed in %v\n", addr, time.Since(start).Round(time.Microsecond))
		return nil
	case <-time.After(10 * time.Second):
		return errors.New("handshake timed out")
	}
}
