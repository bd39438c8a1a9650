// Package driver implements the opaque vendor-CLI SSH client spec.md §1
// names as an external collaborator: ConnectHandler / send_command /
// send_config_set / save_config / commit / disconnect, built on
// golang.org/x/crypto/ssh — the idiomatic Go SSH client library and the
// one dependency family both teacher repos already pull in (for bcrypt).
package driver

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"naas/internal/credentials"
)

// Device names the target of one SSH session: address, platform, and the
// per-command pacing multiplier Netmiko calls delay_factor.
type Device struct {
	IP          string
	Port        int
	Platform    Platform
	DelayFactor int
}

// Client is the surface the worker (C7) drives. It deliberately mirrors
// Netmiko's method names so the mapping from spec.md §1 is direct.
type Client interface {
	SendCommand(cmd string) (string, error)
	SendConfigSet(lines []string) (string, error)
	SaveConfig() error
	Commit() error
	Disconnect() error
}

const (
	connectTimeout = 10 * time.Second
	commandTimeout = 30 * time.Second
)

// saveConfigCommand and commitCommand are the per-platform command used by
// SaveConfig/Commit. Platforms absent from these tables return
// ErrUnsupported, matching Netmiko's behavior for drivers that lack the
// concept (e.g. a bare Linux host has no "commit").
var saveConfigCommand = map[Platform]string{
	PlatformCiscoIOS:   "write memory",
	PlatformCiscoIOSXE: "write memory",
	PlatformCiscoNXOS:  "copy running-config startup-config",
	PlatformAristaEOS:  "write memory",
	PlatformHPComware:  "save force",
}

var commitCommand = map[Platform]string{
	PlatformJuniperJunOS: "commit",
	PlatformCiscoXR:      "commit",
}

// sshClient implements Client over a real golang.org/x/crypto/ssh session,
// one exec per command — networking devices don't multiplex commands over
// a single channel, so each send opens and closes its own channel, same as
// Netmiko's per-command read-until-prompt loop does logically.
type sshClient struct {
	device Device
	conn   *ssh.Client
}

// ConnectHandler opens the SSH session against device using creds, mapping
// connection failures onto the taxonomy the worker's failure routing
// (spec.md §4.6) switches on.
func ConnectHandler(device Device, creds credentials.Credentials) (Client, error) {
	if !IsRegistered(string(device.Platform)) {
		return nil, fmt.Errorf("driver: unregistered platform %q", device.Platform)
	}

	config := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	addr := net.JoinHostPort(device.IP, portOrDefault(device.Port))

	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, classifyDialError(err)
	}

	return &sshClient{device: device, conn: conn}, nil
}

func portOrDefault(port int) string {
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%d", port)
}

// classifyDialError maps golang.org/x/crypto/ssh's dial-time errors onto
// the taxonomy spec.md §4.6/§7 requires: authentication failures must
// never advance the breaker, timeouts and other transport errors must.
func classifyDialError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "authentication"):
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	case isTimeoutErr(err):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
}

func isTimeoutErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func (c *sshClient) run(cmd string) (string, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: opening session: %v", ErrConnection, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("%w: running %q: %v: %s", ErrConnection, cmd, err, stderr.String())
		}
		return stdout.String(), nil
	case <-time.After(commandTimeout):
		return "", fmt.Errorf("%w: command %q exceeded %s", ErrTimeout, cmd, commandTimeout)
	}
}

// SendCommand issues one exec-mode CLI command and returns its output
// verbatim, matching Netmiko's send_command.
func (c *sshClient) SendCommand(cmd string) (string, error) {
	return c.run(cmd)
}

// SendConfigSet submits a sequence of configuration lines as one logical
// unit and returns their aggregate output, matching Netmiko's
// send_config_set.
func (c *sshClient) SendConfigSet(lines []string) (string, error) {
	return c.run(strings.Join(lines, "\n"))
}

// SaveConfig persists the running configuration, or returns ErrUnsupported
// on a platform with no such concept, so the worker can swallow it per
// spec.md §4.6 step 3.
func (c *sshClient) SaveConfig() error {
	cmd, ok := saveConfigCommand[c.device.Platform]
	if !ok {
		return ErrUnsupported
	}
	_, err := c.run(cmd)
	return err
}

// Commit issues a candidate-config commit, or ErrUnsupported on a
// platform without a commit model.
func (c *sshClient) Commit() error {
	cmd, ok := commitCommand[c.device.Platform]
	if !ok {
		return ErrUnsupported
	}
	_, err := c.run(cmd)
	return err
}

// Disconnect closes the underlying SSH connection.
func (c *sshClient) Disconnect() error {
	return c.conn.Close()
}
