// Package notify sends transactional order emails. Delivery is best effort:
// a failed email is logged, never surfaced to the order flow.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ankitchauhan1221/maluk-backend/internal/config"
	"github.com/ankitchauhan1221/maluk-backend/internal/order"
)

// Mailer receives order lifecycle events worth telling the customer about.
type Mailer interface {
	OrderConfirmation(o *order.Order)
	CancellationRequestReceived(o *order.Order)
	CancellationNotice(o *order.Order)
	DeliveryNotice(o *order.Order)
}

type smtpMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) Mailer {
	return &smtpMailer{cfg: cfg}
}

func (m *smtpMailer) OrderConfirmation(o *order.Order) {
	subject := fmt.Sprintf("Order Confirmed - %s", o.OrderID)
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\r\n\r\nYour order %s has been confirmed.\r\n\r\nItems:\r\n", o.ShippingAddress.Name, o.OrderID)
	for _, item := range o.Items {
		fmt.Fprintf(&b, "  - %s x%d @ %s\r\n", item.Name, item.Quantity, formatAmount(item.Price))
	}
	fmt.Fprintf(&b, "\r\nShipping: %s\r\n", formatAmount(o.ShippingCost))
	if o.DiscountAmount > 0 {
		fmt.Fprintf(&b, "Discount (%s): -%s\r\n", o.CouponCode, formatAmount(o.DiscountAmount))
	}
	fmt.Fprintf(&b, "Total payable: %s\r\nPayment method: %s\r\n", formatAmount(o.PayableAmount), o.PaymentMethod)
	if o.ReferenceNumber != "" {
		fmt.Fprintf(&b, "Tracking number: %s\r\n", o.ReferenceNumber)
	}
	b.WriteString("\r\nThank you for shopping with us!\r\n")

	m.send(o, subject, b.String())
}

func (m *smtpMailer) CancellationRequestReceived(o *order.Order) {
	subject := fmt.Sprintf("Cancellation Request Received - %s", o.OrderID)
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nWe have received your cancellation request for order %s.\r\nReason: %s\r\n\r\nOur team will process it shortly.\r\n",
		o.ShippingAddress.Name, o.OrderID, o.CancellationReason)
	m.send(o, subject, body)
}

func (m *smtpMailer) CancellationNotice(o *order.Order) {
	subject := fmt.Sprintf("Order Cancelled - %s", o.OrderID)
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\r\n\r\nYour order %s has been cancelled.\r\n", o.ShippingAddress.Name, o.OrderID)
	if o.RefundStatus == order.RefundInitiated || o.RefundStatus == order.RefundCompleted {
		fmt.Fprintf(&b, "A refund of %s has been initiated and will reach your account in 5-7 business days.\r\n", formatAmount(o.RefundAmount))
	}
	m.send(o, subject, b.String())
}

func (m *smtpMailer) DeliveryNotice(o *order.Order) {
	subject := fmt.Sprintf("Order Delivered - %s", o.OrderID)
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nYour order %s has been delivered.\r\n\r\nWe hope you enjoy your purchase!\r\n",
		o.ShippingAddress.Name, o.OrderID)
	m.send(o, subject, body)
}

// send dispatches asynchronously so a slow or down SMTP server never blocks
// an order flow.
func (m *smtpMailer) send(o *order.Order, subject, body string) {
	to := o.ShippingAddress.Email
	if to == "" || m.cfg.Host == "" {
		return
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.cfg.From, to, subject, body)

	go func() {
		addr := m.cfg.Host + ":" + m.cfg.Port
		auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
		if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
			log.Warn().Err(err).Str("order_id", o.OrderID).Str("subject", subject).Msg("failed to send email")
			return
		}
		log.Debug().Str("order_id", o.OrderID).Str("subject", subject).Msg("email sent")
	}()
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("₹%d.%02d", minor/100, minor%100)
}
