package email

import (
	"fmt"
	"net/smtp"

	"github.com/shopspring/decimal"
)

// Service sends transactional mail through an SMTP relay
type Service struct {
	host string
	port string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
		send: smtp.SendMail,
	}
}

// SendOrderReceived tells the buyer their order is waiting for payment
func (s *Service) SendOrderReceived(to, orderID string, total decimal.Decimal, items []OrderItem) error {
	subject := fmt.Sprintf("We received your order #%s", shortID(orderID))
	return s.deliver(to, subject, BuildOrderReceivedBody(orderID, total, items))
}

// SendPaymentConfirmed tells the buyer their payment went through
func (s *Service) SendPaymentConfirmed(to, orderID string, total decimal.Decimal) error {
	subject := fmt.Sprintf("Payment confirmed for order #%s", shortID(orderID))
	return s.deliver(to, subject, BuildPaymentConfirmedBody(orderID, total))
}

func (s *Service) deliver(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := s.send(addr, nil, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

func shortID(orderID string) string {
	if len(orderID) > 8 {
		return orderID[:8]
	}
	return orderID
}
