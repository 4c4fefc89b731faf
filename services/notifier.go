package services

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/smtp"

	"github.com/courtflow/pickleball-system/config"
	"github.com/courtflow/pickleball-system/models"
)

// Notifier — исходящий канал уведомлений, строго fire-and-forget: сбой
// доставки никогда не блокирует вызывающий workflow.
type Notifier interface {
	ScoreSubmitted(match *models.Match, submitterID int64)
	MatchDisputed(match *models.Match, userID int64, reason string)
	MatchFinalized(match *models.Match)
	DisputeResolved(match *models.Match, organizerID int64, action string)
	ConsistencyViolation(match *models.Match, err error)
}

// emailNotifier отправляет уведомления по SMTP. Отправка уходит в отдельную
// горутину, ошибки только логируются.
type emailNotifier struct {
	cfg *config.Config
}

func NewEmailNotifier(cfg *config.Config) Notifier {
	return &emailNotifier{cfg: cfg}
}

func (n *emailNotifier) ScoreSubmitted(match *models.Match, submitterID int64) {
	subject := fmt.Sprintf("Score submitted for match %d", match.ID)
	body := fmt.Sprintf("A score was submitted for match %d by user %d and awaits acknowledgement.", match.ID, submitterID)
	n.dispatch(subject, body)
}

func (n *emailNotifier) MatchDisputed(match *models.Match, userID int64, reason string) {
	subject := fmt.Sprintf("Match %d disputed", match.ID)
	body := fmt.Sprintf("Match %d was disputed by user %d: %s. Organizer resolution is required.", match.ID, userID, reason)
	n.dispatch(subject, body)
}

func (n *emailNotifier) MatchFinalized(match *models.Match) {
	subject := fmt.Sprintf("Match %d finalized", match.ID)
	winner := 0
	if match.WinnerSideID != nil {
		winner = *match.WinnerSideID
	}
	body := fmt.Sprintf("Match %d is final. Winner side: %d.", match.ID, winner)
	n.dispatch(subject, body)
}

func (n *emailNotifier) DisputeResolved(match *models.Match, organizerID int64, action string) {
	subject := fmt.Sprintf("Dispute resolved for match %d", match.ID)
	body := fmt.Sprintf("The dispute on match %d was resolved by organizer %d (action: %s).", match.ID, organizerID, action)
	n.dispatch(subject, body)
}

func (n *emailNotifier) ConsistencyViolation(match *models.Match, err error) {
	subject := fmt.Sprintf("Manual intervention required: match %d", match.ID)
	body := fmt.Sprintf("Bracket advancement for match %d could not proceed automatically: %v. No slot was overwritten.", match.ID, err)
	n.dispatch(subject, body)
}

func (n *emailNotifier) dispatch(subject, body string) {
	if n.cfg.SMTPHost == "" || n.cfg.NotifyAddress == "" {
		return
	}
	go func() {
		if err := n.send([]string{n.cfg.NotifyAddress}, subject, body); err != nil {
			log.Printf("Notification delivery failed (%q): %v", subject, err)
		}
	}()
}

func (n *emailNotifier) send(to []string, subject, body string) error {
	auth := smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPass, n.cfg.SMTPHost)

	msg := []byte("To: " + to[0] + "\r\n" +
		"From: " + n.cfg.SMTPFrom + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")

	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)

	tlsconfig := &tls.Config{
		ServerName: n.cfg.SMTPHost,
	}

	var client *smtp.Client
	if n.cfg.SMTPPort == 465 {
		// Прямое TLS-соединение
		conn, err := tls.Dial("tcp", addr, tlsconfig)
		if err != nil {
			return fmt.Errorf("smtp tls dial: %w", err)
		}
		defer conn.Close()
		client, err = smtp.NewClient(conn, n.cfg.SMTPHost)
		if err != nil {
			return fmt.Errorf("smtp client: %w", err)
		}
	} else {
		// STARTTLS (обычно порт 587)
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		client = c
		if err = client.StartTLS(tlsconfig); err != nil {
			client.Close()
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	defer client.Quit()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(n.cfg.SMTPFrom); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt to: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return nil
}
