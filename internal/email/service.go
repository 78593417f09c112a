package email

import (
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/example/bookshop/internal/domain/cart"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service delivers HTML mail through an unauthenticated SMTP relay.
type Service struct {
	addr string
	from string
	send sendFunc
}

func NewService(host, port, from string) *Service {
	return &Service{
		addr: net.JoinHostPort(host, port),
		from: from,
		send: smtp.SendMail,
	}
}

// SendReceipt mails the receipt of a checkout to the customer.
func (s *Service) SendReceipt(to, name string, e cart.CheckedOut) error {
	subject := fmt.Sprintf("Your bookshop %s receipt (%s)", e.Variant, receiptNumber(e))
	return s.sendHTML(to, subject, BuildReceiptBody(name, e))
}

func (s *Service) sendHTML(to, subject, body string) error {
	var msg strings.Builder
	for _, h := range [][2]string{
		{"From", s.from},
		{"To", to},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"Date", time.Now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	} {
		msg.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := s.send(s.addr, nil, s.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func receiptNumber(e cart.CheckedOut) string {
	return e.CartID + "-" + e.CheckedOutAt.UTC().Format("20060102-150405")
}
