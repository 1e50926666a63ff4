// Package email sends alerts over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/hejijunhao/warden/internal/alert"
)

const defaultPort = 587

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Sender delivers rendered messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error
}

// Option configures an email Channel.
type Option func(*Channel)

// WithSender replaces the SMTP client.
func WithSender(s Sender) Option {
	return func(c *Channel) { c.sender = s }
}

// Channel sends one plain-text email per alert.
type Channel struct {
	cfg    Config
	sender Sender
}

// New validates cfg and creates an SMTP-backed channel.
func New(cfg Config, opts ...Option) (*Channel, error) {
	if cfg.Host == "" {
		return nil, errors.New("email: host is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("email: from and at least one recipient are required")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	c := &Channel{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.sender == nil {
		client, err := newClient(cfg)
		if err != nil {
			return nil, err
		}
		c.sender = client
	}
	return c, nil
}

func newClient(cfg Config) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("email: %w", err)
	}
	return client, nil
}

func (c *Channel) Name() string { return "email" }

// Send renders a and delivers it to every recipient.
func (c *Channel) Send(ctx context.Context, a alert.Alert) error {
	m, err := c.message(a)
	if err != nil {
		return err
	}
	if err := c.sender.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}

func (c *Channel) message(a alert.Alert) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(c.cfg.From); err != nil {
		return nil, fmt.Errorf("email: from: %w", err)
	}
	if err := m.To(c.cfg.To...); err != nil {
		return nil, fmt.Errorf("email: to: %w", err)
	}
	m.Subject(alert.Subject(a))
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, alert.Body(a))
	return m, nil
}

// Close is a no-op; connections are opened per Send.
func (c *Channel) Close() error { return nil }

// Ping opens a TCP connection to the SMTP server.
func (c *Channel) Ping(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port)))
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return conn.Close()
}
