package adapter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"cmdbsync/internal/domain"
)

// DefaultExportCommand prints the rows of one table, tab separated
const DefaultExportCommand = "cmdb-export --table %d"

// SSHTarget describes how to reach the export command of one element
type SSHTarget struct {
	Host string
	Port int
	User string
	// Password or PrivateKey (PEM) authenticates the session
	Password   string
	PrivateKey []byte
	Passphrase string
	// Command is a format string receiving the table ID
	Command string
	Timeout time.Duration
}

// SSHSource runs an export command on the element for every table read.
// Output lines are rows; cells are separated by tabs.
type SSHSource struct {
	target SSHTarget
	logger *zap.Logger
}

// NewSSHSource creates a row source for a single element
func NewSSHSource(target SSHTarget, logger *zap.Logger) *SSHSource {
	if target.Port == 0 {
		target.Port = 22
	}
	if target.Command == "" {
		target.Command = DefaultExportCommand
	}
	if target.Timeout == 0 {
		target.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSHSource{target: target, logger: logger}
}

// LoadPrivateKey reads a PEM key file into the target
func (t *SSHTarget) LoadPrivateKey(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}
	t.PrivateKey = data
	return nil
}

// Rows implements RowSource
func (s *SSHSource) Rows(ctx context.Context, source string, tableID int) []domain.RawRow {
	log := s.logger.With(zap.String("source", source), zap.Int("table", tableID), zap.String("host", s.target.Host))

	client, err := s.connect(ctx)
	if err != nil {
		log.Warn("ssh connect failed", zap.Error(err))
		return nil
	}
	defer client.Close()

	out, err := s.runCommand(ctx, client, fmt.Sprintf(s.target.Command, tableID))
	if err != nil {
		log.Warn("export command failed", zap.Error(err))
		return nil
	}
	return ParseTabRows(out)
}

// connect establishes an SSH connection honoring ctx while dialing
func (s *SSHSource) connect(ctx context.Context) (*ssh.Client, error) {
	config, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(s.target.Host, strconv.Itoa(s.target.Port))
	dialer := &net.Dialer{Timeout: s.target.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// clientConfig prefers key authentication when a key is configured
func (s *SSHSource) clientConfig() (*ssh.ClientConfig, error) {
	if s.target.User == "" {
		return nil, errors.New("ssh user not configured")
	}

	var auth ssh.AuthMethod
	switch {
	case len(s.target.PrivateKey) > 0:
		var signer ssh.Signer
		var err error
		if s.target.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(s.target.PrivateKey, []byte(s.target.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(s.target.PrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = ssh.PublicKeys(signer)
	case s.target.Password != "":
		auth = ssh.Password(s.target.Password)
	default:
		return nil, errors.New("no ssh credentials configured")
	}

	return &ssh.ClientConfig{
		User:            s.target.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.target.Timeout,
	}, nil
}

// runCommand executes cmd and returns its stdout
func (s *SSHSource) runCommand(ctx context.Context, client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer session.Close()

	type outcome struct {
		out []byte
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := session.Output(cmd)
		done <- outcome{out, err}
	}()

	timer := time.NewTimer(s.target.Timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		if o.err != nil {
			return "", fmt.Errorf("run %q: %w", cmd, o.err)
		}
		return string(o.out), nil
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	case <-timer.C:
		session.Signal(ssh.SIGKILL)
		return "", errors.New("command timeout")
	}
}

// ParseTabRows splits export output into rows. Blank lines and lines
// starting with # are ignored.
func ParseTabRows(out string) []domain.RawRow {
	var rows []domain.RawRow
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cells := strings.Split(line, "\t")
		row := make(domain.RawRow, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		rows = append(rows, row)
	}
	return rows
}
