package mailer

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"

	gomail "gopkg.in/gomail.v2"
)

var ErrNotConfigured = errors.New("email service not configured")

// Job is a queued delivery request, serialized into queue messages so the
// worker can send outside the request path.
type Job struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Encode serializes a job for the queue.
func (j Job) Encode() []byte {
	b, _ := json.Marshal(j)
	return b
}

// DecodeJob parses a queued job.
func DecodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("decode email job: %w", err)
	}
	return j, nil
}

// Mailer sends plain-text mail over SMTP.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// New creates a mailer. Host or username left empty yields an unconfigured
// mailer whose sends fail with ErrNotConfigured.
func New(host string, port int, username, password, from string) *Mailer {
	if from == "" {
		from = username
	}
	return &Mailer{host: host, port: port, username: username, password: password, from: from}
}

// Configured reports whether SMTP settings are present.
func (m *Mailer) Configured() bool {
	return m != nil && m.host != "" && m.username != ""
}

// Send delivers one message. The body is sent as text with an HTML
// pre-wrapped mirror for clients that prefer it.
func (m *Mailer) Send(to, subject, body string) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	msg.AddAlternative("text/html", `<pre style="font-family: Arial, sans-serif; white-space: pre-wrap;">`+html.EscapeString(body)+`</pre>`)

	dialer := gomail.NewDialer(m.host, m.port, m.username, m.password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}
