// Package notify delivers participant QR codes by email.
package notify

import (
	"context"
	"fmt"
	"html"
	"io"

	gomail "gopkg.in/gomail.v2"
)

// qrAttachmentName is both the inline file name and its Content-ID.
const qrAttachmentName = "qrcode.png"

// QRCodeMessage is one QR code email.
type QRCodeMessage struct {
	To        string
	Name      string
	Subject   string
	EventName string
	ScanCode  string
	QRPageURL string
	PNG       []byte
}

// Mailer sends QR code emails.
type Mailer interface {
	SendQRCode(ctx context.Context, msg QRCodeMessage) error
}

// SMTPConfig holds SMTP server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Pass     string
	SSL      bool
	From     string
	FromName string
}

// SMTPMailer sends mail through an SMTP server with gomail.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

// NewSMTPMailer creates a mailer. Each send opens its own connection.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	d.SSL = cfg.SSL
	return &SMTPMailer{cfg: cfg, dialer: d}
}

// SendQRCode sends msg with the QR PNG embedded inline.
func (m *SMTPMailer) SendQRCode(ctx context.Context, msg QRCodeMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(m.build(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) build(msg QRCodeMessage) *gomail.Message {
	g := gomail.NewMessage()
	g.SetAddressHeader("From", m.cfg.From, m.cfg.FromName)
	g.SetAddressHeader("To", msg.To, msg.Name)
	g.SetHeader("Subject", msg.Subject)
	g.SetBody("text/plain", plainBody(msg))
	g.AddAlternative("text/html", htmlBody(msg))
	png := msg.PNG
	g.Embed(qrAttachmentName, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(png)
		return err
	}))
	return g
}

func plainBody(msg QRCodeMessage) string {
	s := fmt.Sprintf("Hello %s,\n\nShow this QR code at the entrance of %s.\nCode: %s\n", msg.Name, msg.EventName, msg.ScanCode)
	if msg.QRPageURL != "" {
		s += "Online: " + msg.QRPageURL + "\n"
	}
	return s
}

func htmlBody(msg QRCodeMessage) string {
	s := fmt.Sprintf(`<p>Hello %s,</p><p>Show this QR code at the entrance of <strong>%s</strong>.</p><p><img src="cid:%s" alt="%s" width="300" height="300"></p>`,
		html.EscapeString(msg.Name), html.EscapeString(msg.EventName), qrAttachmentName, html.EscapeString(msg.ScanCode))
	if msg.QRPageURL != "" {
		s += fmt.Sprintf(`<p><a href="%s">Open your QR code online</a></p>`, html.EscapeString(msg.QRPageURL))
	}
	return s
}
