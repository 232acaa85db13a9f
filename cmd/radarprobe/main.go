// Command radarprobe finds a radard instance and runs a short generator
// session against it: configure a tone, start, capture, stop.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/rjboer/radarcore/internal/mdns"
	"github.com/rjboer/radarcore/internal/message"
	"github.com/rjboer/radarcore/internal/transport"
)

type options struct {
	addr     string
	discover time.Duration
	freqKHz  uint32
	timeout  time.Duration
}

func parseOptions(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("radarprobe", pflag.ContinueOnError)
	fs.StringVarP(&o.addr, "addr", "a", "", "radard address (host:port); browse mDNS when empty")
	fs.DurationVar(&o.discover, "discover", 3*time.Second, "mDNS browse time")
	fs.Uint32Var(&o.freqKHz, "freq", 1000, "test tone in kHz")
	fs.DurationVar(&o.timeout, "timeout", 5*time.Second, "per-reply timeout")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	ctx := context.Background()
	if opts.addr == "" {
		dctx, cancel := context.WithTimeout(ctx, opts.discover)
		hosts, err := mdns.Discover(dctx, mdns.ServiceType)
		cancel()
		if err != nil {
			log.Fatalf("discover: %v", err)
		}
		if len(hosts) == 0 {
			log.Fatalf("no %s service found", mdns.ServiceType)
		}
		opts.addr = hosts[0].Addr()
		fmt.Printf("Found %s at %s\n", hosts[0].Instance, opts.addr)
	}

	c, err := transport.Dial(ctx, opts.addr)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if err := probe(c, os.Stdout, opts); err != nil {
		log.Fatalf("probe: %v", err)
	}
}

type session interface {
	Send(message.Message) error
	Receive(timeout time.Duration) (message.Reply, error)
}

func probe(c session, out io.Writer, opts options) error {
	steps := []struct {
		name string
		msg  message.Message
		want message.Retval
	}{
		{"config", message.Config{Generator: &message.GeneratorConfig{
			Mode:      message.Continuous,
			ConstFreq: &message.ConstFreq{FreqKHz: opts.freqKHz},
		}}, message.RetvalAck},
		{"start", message.Control{Command: message.Start}, message.RetvalAck},
		{"capture", message.Control{Command: message.TriggerDebug}, message.RetvalDebugIsValid},
		{"stop", message.Control{Command: message.Stop}, message.RetvalAck},
	}
	for _, s := range steps {
		if err := c.Send(s.msg); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		r, err := c.Receive(opts.timeout)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		if r.Ack == nil {
			return fmt.Errorf("%s: expected an ack frame", s.name)
		}
		fmt.Fprintf(out, "%-8s %s\n", s.name, r.Ack.Retval)
		if r.Ack.Retval != s.want {
			return fmt.Errorf("%s: got %s, want %s", s.name, r.Ack.Retval, s.want)
		}
		if s.want != message.RetvalDebugIsValid {
			continue
		}
		r, err = c.Receive(opts.timeout)
		if err != nil {
			return fmt.Errorf("%s samples: %w", s.name, err)
		}
		if r.Debug == nil {
			return fmt.Errorf("%s: expected a debug frame", s.name)
		}
		fmt.Fprintf(out, "%-8s %d samples, tone %.1f kHz\n", "", r.Debug.NumSamples, r.Debug.ToneKHz)
	}
	return nil
}
