package device

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/newtron-network/routersync/pkg/snippets"
	"github.com/newtron-network/routersync/pkg/util"
)

// SSHConfig describes how to reach a device's CLI.
type SSHConfig struct {
	Device     string
	Host       string
	Port       int
	User       string
	Password   string
	KnownHosts string // path to a known_hosts file; empty disables verification
	Timeout    time.Duration
}

// errorMarkers are the prefixes IOS XE uses for rejected input.
var errorMarkers = []string{
	"% Invalid input",
	"% Incomplete command",
	"% Ambiguous command",
	"% Unknown command",
}

// SSHSession pushes configuration over an SSH connection to the device CLI.
// Each Apply opens a shell channel, enters configuration mode, writes the
// command lines and reads the echoed output for error markers.
type SSHSession struct {
	device string
	client *ssh.Client
	mu     sync.Mutex
}

// DialSSH connects to the device.
func DialSSH(ctx context.Context, cfg SSHConfig) (*SSHSession, error) {
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	addr := fmt.Sprintf("%s:%d", cfg.Host, port)
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts %s: %w", cfg.KnownHosts, err)
		}
		hostKey = cb
	} else {
		util.WithDevice(cfg.Device).Warnf("SSH to %s: host key verification disabled", addr)
	}

	config := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
		},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &CommandError{Device: cfg.Device, Command: "connect", Err: err}
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, &CommandError{Device: cfg.Device, Command: "connect", Err: fmt.Errorf("SSH handshake %s@%s: %w", cfg.User, addr, err)}
	}

	util.WithDevice(cfg.Device).Info("Connected")
	return &SSHSession{
		device: cfg.Device,
		client: ssh.NewClient(c, chans, reqs),
	}, nil
}

func (s *SSHSession) Device() string { return s.device }

// Apply sends the commands inside one configuration session. Commands are
// expanded into CLI lines; an "end" returns the shell to exec mode.
func (s *SSHSession) Apply(ctx context.Context, cmds []string) error {
	if len(cmds) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var script strings.Builder
	script.WriteString("configure terminal\n")
	for _, cmd := range cmds {
		for _, line := range snippets.Lines(cmd) {
			script.WriteString(strings.TrimSpace(line))
			script.WriteString("\n")
		}
		// Leave any sub-mode so the next command starts at config level.
		script.WriteString(strings.Repeat("exit\n", strings.Count(cmd, ": ")))
	}
	script.WriteString("end\nexit\n")

	out, err := s.runShell(ctx, script.String())
	if err != nil {
		return &CommandError{Device: s.device, Command: cmds[0], Output: out, Err: err}
	}
	if bad := rejected(out); bad != "" {
		return &CommandError{Device: s.device, Command: strings.Join(cmds, "; "), Output: bad}
	}
	util.WithDevice(s.device).Debugf("Applied %d commands", len(cmds))
	return nil
}

// RunningConfig runs "show running-config" on an exec channel.
func (s *SSHSession) RunningConfig(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.exec(ctx, "show running-config")
	if err != nil {
		return "", &CommandError{Device: s.device, Command: "show running-config", Output: out, Err: err}
	}
	return out, nil
}

// Close closes the SSH connection.
func (s *SSHSession) Close() error {
	util.WithDevice(s.device).Info("Disconnected")
	return s.client.Close()
}

func (s *SSHSession) exec(ctx context.Context, cmd string) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("SSH session: %w", err)
	}
	defer session.Close()

	stop := closeOnDone(ctx, session)
	defer stop()

	output, err := session.CombinedOutput(cmd)
	if err != nil {
		return string(output), fmt.Errorf("SSH exec '%s': %w", cmd, err)
	}
	return string(output), nil
}

func (s *SSHSession) runShell(ctx context.Context, script string) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("SSH session: %w", err)
	}
	defer session.Close()

	stop := closeOnDone(ctx, session)
	defer stop()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out
	session.Stdin = strings.NewReader(script)

	if err := session.Shell(); err != nil {
		return "", fmt.Errorf("SSH shell: %w", err)
	}
	if err := session.Wait(); err != nil {
		// IOS closes the channel without an exit status after "exit".
		if _, ok := err.(*ssh.ExitMissingError); !ok {
			return out.String(), fmt.Errorf("SSH shell: %w", err)
		}
	}
	return out.String(), nil
}

// closeOnDone closes the SSH session when ctx is cancelled. The returned
// func stops the watcher.
func closeOnDone(ctx context.Context, session *ssh.Session) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// rejected returns the first device error line in output, or "".
func rejected(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		for _, m := range errorMarkers {
			if strings.HasPrefix(line, m) {
				return line
			}
		}
	}
	return ""
}
