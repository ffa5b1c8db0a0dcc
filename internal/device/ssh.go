package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Credentials carries the switch login and the enable secret used to reach
// privileged exec mode.
type Credentials struct {
	Username     string
	Password     string
	EnableSecret string
}

// Options tunes how a connection is opened and driven.
type Options struct {
	Port           int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	Logger         *slog.Logger
}

const (
	defaultPort           = 22
	defaultConnectTimeout = 15 * time.Second
	defaultCommandTimeout = 30 * time.Second
)

var (
	execPromptRE     = regexp.MustCompile(`(?m)^[\w.\-()/]+> ?$`)
	privPromptRE     = regexp.MustCompile(`(?m)^[\w.\-()/]+# ?$`)
	passwordPromptRE = regexp.MustCompile(`(?i)password: ?$`)
)

// Conn is an interactive shell on a single switch. A Conn belongs to exactly
// one collection run and is not safe for concurrent use.
type Conn struct {
	target         string
	client         *ssh.Client
	session        *ssh.Session
	stdin          io.WriteCloser
	outCh          chan string
	readErrCh      chan error
	done           chan struct{}
	prompt         string
	promptRE       *regexp.Regexp
	commandTimeout time.Duration
	logger         *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open dials the switch, authenticates, elevates to privileged exec mode and
// disables output pagination. On any failure the partial connection is torn
// down and an *OpError describing the failure is returned.
func Open(ctx context.Context, target string, creds Credentials, opts Options) (*Conn, error) {
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// Older IOS images only offer legacy key exchanges and CBC ciphers, so
	// extend the defaults rather than replacing them.
	var algos ssh.Config
	algos.SetDefaults()
	algos.KeyExchanges = append(algos.KeyExchanges,
		"diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1")
	algos.Ciphers = append(algos.Ciphers, "aes128-cbc", "aes256-cbc", "3des-cbc")

	sshConfig := &ssh.ClientConfig{
		Config: algos,
		User:   creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(creds.Password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = creds.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         opts.ConnectTimeout,
	}

	addr := net.JoinHostPort(target, strconv.Itoa(opts.Port))

	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &OpError{Op: "open", Target: target, Kind: dialErrorKind(err), Err: err}
	}

	// Bound the SSH handshake with a deadline on the raw connection.
	_ = raw.SetDeadline(time.Now().Add(opts.ConnectTimeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(raw, addr, sshConfig)
	if err != nil {
		raw.Close()
		return nil, &OpError{Op: "open", Target: target, Kind: handshakeErrorKind(err), Err: err}
	}
	_ = raw.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)

	c := &Conn{
		target:         target,
		client:         client,
		outCh:          make(chan string, 64),
		readErrCh:      make(chan error, 1),
		done:           make(chan struct{}),
		commandTimeout: opts.CommandTimeout,
		logger:         opts.Logger,
	}

	if err := c.startShell(); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.elevate(creds.EnableSecret, opts.ConnectTimeout); err != nil {
		c.Close()
		return nil, err
	}

	// Pagination would stall every multi-page command behind a --More--
	// prompt that nothing here answers.
	if _, err := c.Run("terminal length 0"); err != nil {
		c.Close()
		return nil, err
	}

	c.logger.Debug("Device connection established", "target", target, "prompt", c.prompt)
	return c, nil
}

// startShell requests a PTY, starts the remote shell and spawns the output
// reader goroutine.
func (c *Conn) startShell() error {
	session, err := c.client.NewSession()
	if err != nil {
		return &OpError{Op: "open", Target: c.target, Kind: KindTransport, Err: err}
	}
	c.session = session

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("vt100", 24, 80, modes); err != nil {
		return &OpError{Op: "open", Target: c.target, Kind: KindTransport, Err: fmt.Errorf("failed to request pty: %w", err)}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return &OpError{Op: "open", Target: c.target, Kind: KindTransport, Err: err}
	}
	c.stdin = stdin

	stdout, err := session.StdoutPipe()
	if err != nil {
		return &OpError{Op: "open", Target: c.target, Kind: KindTransport, Err: err}
	}

	if err := session.Shell(); err != nil {
		return &OpError{Op: "open", Target: c.target, Kind: KindTransport, Err: fmt.Errorf("failed to start shell: %w", err)}
	}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				select {
				case c.outCh <- string(buf[:n]):
				case <-c.done:
					return
				}
			}
			if err != nil {
				select {
				case c.readErrCh <- err:
				case <-c.done:
				}
				return
			}
		}
	}()

	return nil
}

// elevate drives the shell from user exec to privileged exec mode and learns
// the device prompt on the way.
func (c *Conn) elevate(enableSecret string, timeout time.Duration) error {
	idx, out, err := c.expect(timeout, privPromptRE, execPromptRE)
	if err != nil {
		return err
	}

	if idx != 0 {
		// Device dropped us in user exec mode, elevate with the secret.
		if err := c.send("enable"); err != nil {
			return err
		}
		idx, out, err = c.expect(timeout, privPromptRE, passwordPromptRE)
		if err != nil {
			return err
		}
		if idx == 1 {
			if err := c.send(enableSecret); err != nil {
				return err
			}
			idx, out, err = c.expect(timeout, privPromptRE, passwordPromptRE, execPromptRE)
			if err != nil {
				return err
			}
			if idx != 0 {
				return &OpError{
					Op:     "open",
					Target: c.target,
					Kind:   KindAuth,
					Err:    errors.New("enable secret rejected"),
				}
			}
		}
	}

	c.prompt = lastNonEmptyLine(out)
	c.promptRE = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(c.prompt) + ` ?$`)
	return nil
}

// Run executes a single command in privileged exec mode and returns its
// output with the echoed command and the trailing prompt stripped.
func (c *Conn) Run(command string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", &OpError{Op: "run", Target: c.target, Kind: KindTransport, Err: errors.New("connection is closed")}
	}
	c.mu.Unlock()

	c.drain()
	if err := c.send(command); err != nil {
		return "", err
	}

	promptRE := c.promptRE
	if promptRE == nil {
		promptRE = privPromptRE
	}
	_, out, err := c.expect(c.commandTimeout, promptRE)
	if err != nil {
		var opErr *OpError
		if errors.As(err, &opErr) {
			opErr.Op = "run"
		}
		return "", err
	}

	return trimCommandOutput(out, command, c.prompt), nil
}

// Close tears the connection down. It is safe to call on a partially opened
// or already closed connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	if c.session != nil {
		_ = c.session.Close()
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// send writes one line to the remote shell.
func (c *Conn) send(line string) error {
	if _, err := fmt.Fprintf(c.stdin, "%s\n", line); err != nil {
		return &OpError{Op: "run", Target: c.target, Kind: KindTransport, Err: fmt.Errorf("failed to write command: %w", err)}
	}
	return nil
}

// expect accumulates shell output until one of the patterns matches or the
// timeout lapses. It returns the index of the matched pattern and everything
// read so far.
func (c *Conn) expect(timeout time.Duration, patterns ...*regexp.Regexp) (int, string, error) {
	var buf strings.Builder
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case chunk := <-c.outCh:
			buf.WriteString(chunk)
			text := normalizeNewlines(buf.String())
			for i, re := range patterns {
				if re.MatchString(text) {
					return i, text, nil
				}
			}
		case err := <-c.readErrCh:
			return -1, buf.String(), &OpError{
				Op:     "open",
				Target: c.target,
				Kind:   KindTransport,
				Err:    fmt.Errorf("shell closed: %w", err),
			}
		case <-timer.C:
			return -1, buf.String(), &OpError{
				Op:     "open",
				Target: c.target,
				Kind:   KindTimeout,
				Err:    fmt.Errorf("timed out after %s waiting for device prompt", timeout),
			}
		}
	}
}

// drain discards buffered output left over from a previous exchange.
func (c *Conn) drain() {
	for {
		select {
		case <-c.outCh:
		default:
			return
		}
	}
}

// trimCommandOutput strips the echoed command line and the trailing prompt
// from raw shell output.
func trimCommandOutput(raw, command, prompt string) string {
	s := normalizeNewlines(raw)
	lines := strings.Split(s, "\n")

	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.Contains(lines[0], command) {
		lines = lines[1:]
	}
	for len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if last == "" || (prompt != "" && last == prompt) || (prompt == "" && privPromptRE.MatchString(last)) {
			lines = lines[:len(lines)-1]
			continue
		}
		break
	}

	return strings.Join(lines, "\n")
}

// normalizeNewlines folds the PTY's CRLF pairs and stray carriage returns
// into plain newlines.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// lastNonEmptyLine returns the last line of s that contains more than
// whitespace.
func lastNonEmptyLine(s string) string {
	lines := strings.Split(normalizeNewlines(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// dialErrorKind classifies a TCP dial failure.
func dialErrorKind(err error) ErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransport
}

// handshakeErrorKind classifies an SSH handshake failure.
func handshakeErrorKind(err error) ErrorKind {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return KindAuth
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindTransport
}
