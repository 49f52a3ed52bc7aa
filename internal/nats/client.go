package nats

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/stone-age-io/sysmetrics/internal/config"
	"github.com/stone-age-io/sysmetrics/internal/sampler"
	"go.uber.org/zap"
)

// Client manages the NATS connection used to publish snapshots and
// answer command requests
type Client struct {
	conn    *nats.Conn
	js      nats.JetStreamContext // nil when publishing over core NATS
	logger  *zap.Logger
	config  *config.NATSConfig
	subject string
}

// SnapshotSubject returns the subject snapshots for hostID are published on
func SnapshotSubject(prefix, hostID string) string {
	return fmt.Sprintf("%s.%s.snapshot", prefix, hostID)
}

// CommandSubject returns the request subject for a named command
func CommandSubject(prefix, hostID, command string) string {
	return fmt.Sprintf("%s.%s.cmd.%s", prefix, hostID, command)
}

// NewClient creates a new NATS client with the specified configuration
func NewClient(cfg *config.NATSConfig, logger *zap.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("sysmetrics-" + cfg.HostID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			} else {
				logger.Info("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS error", zap.Error(err), zap.String("subject", subject))
		}),
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := createTLSConfig(&cfg.TLS, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
		logger.Info("TLS enabled for NATS connection",
			zap.Bool("client_cert", cfg.TLS.CertFile != ""),
			zap.Bool("ca_cert", cfg.TLS.CAFile != ""),
			zap.Bool("skip_verify", cfg.TLS.InsecureSkipVerify))
		if cfg.TLS.InsecureSkipVerify {
			logger.Warn("TLS certificate verification is DISABLED, use only in development")
		}
	}

	authOpt, err := authOption(&cfg.Auth)
	if err != nil {
		return nil, err
	}
	if authOpt != nil {
		opts = append(opts, authOpt)
	}
	logger.Info("NATS authentication", zap.String("type", cfg.Auth.Type))

	// All URLs for failover
	logger.Info("Connecting to NATS", zap.Strings("urls", cfg.URLs))
	conn, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("server_id", conn.ConnectedServerId()),
		zap.Bool("tls", conn.TLSRequired()))

	c := &Client{
		conn:    conn,
		logger:  logger,
		config:  cfg,
		subject: SnapshotSubject(cfg.SubjectPrefix, cfg.HostID),
	}

	if cfg.JetStream {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		// Fail at startup rather than on the first scheduled publish
		if _, err := js.AccountInfo(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("JetStream not available on NATS server (is JetStream enabled?): %w", err)
		}
		logger.Info("JetStream validated successfully")
		c.js = js
	}

	return c, nil
}

func authOption(cfg *config.AuthConfig) (nats.Option, error) {
	switch cfg.Type {
	case "creds":
		return nats.UserCredentials(cfg.CredsFile), nil
	case "token":
		return nats.Token(cfg.Token), nil
	case "userpass":
		return nats.UserInfo(cfg.Username, cfg.Password), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid auth type: %s", cfg.Type)
	}
}

// createTLSConfig creates a TLS configuration based on the provided settings
func createTLSConfig(cfg *config.TLSConfig, logger *zap.Logger) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CAFile != "" {
		logger.Info("Loading CA certificate", zap.String("file", cfg.CAFile))
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	// Mutual TLS
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		logger.Info("Loading client certificate",
			zap.String("cert", cfg.CertFile),
			zap.String("key", cfg.KeyFile))
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// PublishSnapshot publishes the JSON encoding of snap on the host's snapshot
// subject. With JetStream the ack is awaited in the background and failures
// are only logged
func (c *Client) PublishSnapshot(ctx context.Context, snap sampler.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.js == nil {
		if err := c.conn.Publish(c.subject, data); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", c.subject, err)
		}
		c.logger.Debug("Published snapshot", zap.String("subject", c.subject), zap.Int("bytes", len(data)))
		return nil
	}

	future, err := c.js.PublishAsync(c.subject, data)
	if err != nil {
		return fmt.Errorf("failed to queue publish to %s: %w", c.subject, err)
	}

	go func() {
		select {
		case <-future.Ok():
			c.logger.Debug("Published snapshot",
				zap.String("subject", c.subject),
				zap.Int("bytes", len(data)))
		case err := <-future.Err():
			c.logger.Warn("Failed to publish snapshot after retries",
				zap.String("subject", c.subject),
				zap.Error(err))
		}
	}()

	return nil
}

// Subscribe creates a subscription to the specified subject
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.logger.Info("Subscribed to subject", zap.String("subject", subject))
	return sub, nil
}

// Drain gracefully closes the connection, waiting for in-flight messages
// until ctx is done
func (c *Client) Drain(ctx context.Context) error {
	if c.conn.IsClosed() {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- c.conn.Drain()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("drain failed: %w", err)
		}
		c.logger.Info("NATS drain completed")
		return nil
	case <-ctx.Done():
		c.logger.Warn("NATS drain timeout, forcing close")
		c.conn.Close()
		return fmt.Errorf("drain interrupted: %w", ctx.Err())
	}
}

// Close immediately closes the NATS connection
func (c *Client) Close() {
	c.conn.Close()
}

// IsConnected returns true if the NATS connection is currently active
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}
