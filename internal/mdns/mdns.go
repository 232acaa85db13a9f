// Package mdns announces the control service over DNS-SD and finds it again
// from clients.
package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service the daemon advertises.
const ServiceType = "_radarctl._tcp"

const domain = "local."

// Host is one discovered control endpoint.
type Host struct {
	Instance  string // advertised name, e.g. "radard on redpitaya"
	Hostname  string // DNS hostname, e.g. "rp-f0.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// Addr returns host:port for the first IPv4 address, falling back to the
// first address of any family and then to the hostname.
func (h Host) Addr() string {
	port := strconv.Itoa(h.Port)
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			return net.JoinHostPort(ip.String(), port)
		}
	}
	if len(h.Addresses) > 0 {
		return net.JoinHostPort(h.Addresses[0].String(), port)
	}
	return net.JoinHostPort(strings.TrimSuffix(h.Hostname, "."), port)
}

// Announcement is a registered service. Shutdown withdraws it.
type Announcement struct {
	server *zeroconf.Server
}

// Announce registers instance on port until Shutdown is called.
func Announce(instance string, port int, txt []string) (*Announcement, error) {
	server, err := zeroconf.Register(instance, ServiceType, domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", ServiceType, err)
	}
	return &Announcement{server: server}, nil
}

func (a *Announcement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Discover browses service until ctx ends and returns the deduplicated
// hosts, sorted by instance name.
func Discover(ctx context.Context, service string) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(map[string]Host)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if e == nil {
					continue
				}
				h := hostFromEntry(e)
				found[fmt.Sprintf("%s|%d", h.Hostname, h.Port)] = h
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}
	<-done

	out := make([]Host, 0, len(found))
	for _, h := range found {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

func hostFromEntry(e *zeroconf.ServiceEntry) Host {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Host{
		Instance:  cleanInstance(e.Instance),
		Hostname:  e.HostName,
		Addresses: addrs,
		Port:      e.Port,
		TXT:       append([]string{}, e.Text...),
	}
}

// cleanInstance removes zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
