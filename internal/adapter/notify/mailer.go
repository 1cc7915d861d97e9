package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/skip2/go-qrcode"
	"gopkg.in/gomail.v2"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
)

const qrSize = 256

// Sender delivers a composed message. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Mailer struct {
	sender Sender
	from   string
}

func NewMailer(sender Sender, from string) *Mailer {
	return &Mailer{sender: sender, from: from}
}

func NewSMTPMailer(host string, port int, username, password, from string) *Mailer {
	return NewMailer(gomail.NewDialer(host, port, username, password), from)
}

func (m *Mailer) Notify(ctx context.Context, n domain.Notification) error {
	if n.Recipient.Email == "" {
		return fmt.Errorf("no email address for user %s", n.Recipient.UserID)
	}

	msg, err := m.compose(n)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (m *Mailer) compose(n domain.Notification) (*gomail.Message, error) {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", n.Recipient.Email)

	switch n.Kind {
	case domain.NotificationTicketConfirmed:
		msg.SetHeader("Subject", "Ticket Booking Confirmation")
		msg.SetBody("text/plain", confirmationBody(n))

		png, err := ticketQR(n.Ticket)
		if err != nil {
			return nil, fmt.Errorf("generate qr code: %w", err)
		}
		filename := fmt.Sprintf("ticket_%s.png", n.Ticket.ID)
		msg.Attach(filename, gomail.Rename(filename), gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := io.Copy(w, bytes.NewReader(png))
			return err
		}))
	case domain.NotificationTicketRefunded:
		msg.SetHeader("Subject", "Ticket Cancellation & Refund Confirmation")
		msg.SetBody("text/plain", refundBody(n))
	default:
		return nil, fmt.Errorf("unsupported notification kind %q", n.Kind)
	}
	return msg, nil
}

func confirmationBody(n domain.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nYour ticket has been booked successfully!\n\n", n.Recipient.Name)
	fmt.Fprintf(&b, "Event: %s\n", n.EventTitle)
	for _, li := range n.Ticket.LineItems {
		fmt.Fprintf(&b, "Ticket Type: %s\nQuantity: %d\n", li.TierName, li.Quantity)
	}
	fmt.Fprintf(&b, "Total Paid: %s %s\n", strings.ToUpper(n.Ticket.Currency), n.Ticket.Amount.StringFixed(2))
	return b.String()
}

func refundBody(n domain.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nYour ticket cancellation has been processed successfully!\n\n", n.Recipient.Name)
	fmt.Fprintf(&b, "Event: %s\n", n.EventTitle)
	fmt.Fprintf(&b, "Refund Amount: %s %s\n", strings.ToUpper(n.Ticket.Currency), n.Ticket.Amount.StringFixed(2))
	b.WriteString("Refund Status: Completed\n\n")
	b.WriteString("The amount will be credited back to your original payment method within 5-7 business days.\n\nThank you!\n")
	return b.String()
}

func ticketQR(t domain.Ticket) ([]byte, error) {
	return qrcode.Encode("ticket:"+t.ID, qrcode.Medium, qrSize)
}
