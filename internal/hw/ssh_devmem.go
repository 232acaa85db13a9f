package hw

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/crypto/ssh"
)

// SSHConfig describes the board login used for remote register access.
type SSHConfig struct {
	Host     string
	User     string
	Password string
	KeyPath  string
	Port     int
	// DevmemPath is the busybox devmem binary on the target.
	DevmemPath string
	Timeout    time.Duration
	// DialAttempts bounds connection retries.
	DialAttempts uint64
}

// SSHDevMem reaches the register file of a remote board by running devmem over
// SSH. Each access is one round trip, so it suits bring-up and diagnostics
// rather than the DMA data path.
type SSHDevMem struct {
	mu     sync.Mutex
	cfg    SSHConfig
	client *ssh.Client
	run    func(ctx context.Context, cmd string) (string, error)
}

// NewSSHDevMem validates configuration and prepares a lazily-dialed port.
func NewSSHDevMem(cfg SSHConfig) (*SSHDevMem, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host is required for remote register access")
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DevmemPath == "" {
		cfg.DevmemPath = "devmem"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.DialAttempts == 0 {
		cfg.DialAttempts = 3
	}
	d := &SSHDevMem{cfg: cfg}
	d.run = d.runSSH
	return d, nil
}

func (d *SSHDevMem) ReadWord(addr uint32) (uint32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()
	out, err := d.run(ctx, fmt.Sprintf("%s 0x%08x 32", d.cfg.DevmemPath, addr))
	if err != nil {
		return 0, fmt.Errorf("%w: devmem read 0x%08x: %v", ErrAccess, addr, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(out), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: devmem read 0x%08x: unexpected output %q", ErrAccess, addr, out)
	}
	return uint32(v), nil
}

func (d *SSHDevMem) WriteWord(addr uint32, value uint32) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()
	if _, err := d.run(ctx, fmt.Sprintf("%s 0x%08x 32 0x%08x", d.cfg.DevmemPath, addr, value)); err != nil {
		return fmt.Errorf("%w: devmem write 0x%08x: %v", ErrAccess, addr, err)
	}
	return nil
}

func (d *SSHDevMem) ReadBit(addr uint32, bit uint) (bool, error) { return readBit(d, addr, bit) }

func (d *SSHDevMem) WriteBit(addr uint32, bit uint, value bool) error {
	return writeBit(d, addr, bit, value)
}

// Close drops the SSH connection if one is open.
func (d *SSHDevMem) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

func (d *SSHDevMem) runSSH(ctx context.Context, cmd string) (string, error) {
	client, err := d.dial(ctx)
	if err != nil {
		return "", err
	}
	session, err := client.NewSession()
	if err != nil {
		// Stale connection: drop it so the next access redials.
		d.Close()
		return "", fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout
	if err := session.Run(cmd); err != nil {
		return "", fmt.Errorf("run %q: %w", cmd, err)
	}
	return stdout.String(), nil
}

func (d *SSHDevMem) dial(ctx context.Context) (*ssh.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}

	auth := []ssh.AuthMethod{}
	if d.cfg.Password != "" {
		auth = append(auth, ssh.Password(d.cfg.Password))
	}
	if d.cfg.KeyPath != "" {
		key, err := os.ReadFile(d.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh password or key configured")
	}

	config := &ssh.ClientConfig{
		User:            d.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.cfg.Timeout,
	}
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))

	var client *ssh.Client
	connect := func() error {
		dialer := net.Dialer{Timeout: d.cfg.Timeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dial ssh: %w", err)
		}
		clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create ssh client: %w", err)
		}
		client = ssh.NewClient(clientConn, chans, reqs)
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), d.cfg.DialAttempts-1), ctx)
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, err
	}
	d.client = client
	return client, nil
}
