package mdns

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestHostFromEntry(t *testing.T) {
	e := zeroconf.NewServiceEntry(`radard\ on\ rp`, ServiceType, domain)
	e.HostName = "rp-f0.local."
	e.Port = 8600
	e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	e.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	e.Text = []string{"version=1"}

	h := hostFromEntry(e)
	if h.Instance != "radard on rp" {
		t.Fatalf("instance not unescaped: %q", h.Instance)
	}
	if len(h.Addresses) != 2 || h.Addresses[0].String() != "192.168.1.20" {
		t.Fatalf("unexpected addresses %v", h.Addresses)
	}
	if h.Addr() != "192.168.1.20:8600" {
		t.Fatalf("Addr() = %s", h.Addr())
	}
	e.Text[0] = "mutated"
	if h.TXT[0] != "version=1" {
		t.Fatalf("TXT aliases the entry")
	}
}

func TestAddrFallbacks(t *testing.T) {
	v6 := Host{Hostname: "rp.local.", Port: 1, Addresses: []net.IP{net.ParseIP("fe80::1")}}
	if got := v6.Addr(); got != "[fe80::1]:1" {
		t.Fatalf("v6 Addr() = %s", got)
	}
	bare := Host{Hostname: "rp.local.", Port: 2}
	if got := bare.Addr(); got != "rp.local:2" {
		t.Fatalf("hostname Addr() = %s", got)
	}
}
