// Package mailbox retrieves SNAP export documents delivered as compressed
// email attachments over IMAP.
package mailbox

import "fmt"

// Config holds connection settings for the IMAP mailbox that receives
// exports.
type Config struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	TLS      bool   `toml:"tls"`      // Implicit TLS (IMAPS, port 993)
	STARTTLS bool   `toml:"starttls"` // STARTTLS upgrade (port 143)
	Username string `toml:"username"`
	Password string `toml:"password"`
	Mailbox  string `toml:"mailbox"` // defaults to INBOX
	Subject  string `toml:"subject"` // subject filter for export messages
}

// Addr returns the "host:port" string.
func (c *Config) Addr() string {
	port := c.Port
	if port == 0 {
		if c.TLS {
			port = 993
		} else {
			port = 143
		}
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// MailboxName returns the configured mailbox, defaulting to INBOX.
func (c *Config) MailboxName() string {
	if c.Mailbox == "" {
		return "INBOX"
	}
	return c.Mailbox
}

// Configured reports whether the mailbox has usable credentials.
func (c *Config) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}
