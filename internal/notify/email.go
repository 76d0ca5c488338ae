package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/MotionAge/sn-sub000/internal/common"
	"github.com/MotionAge/sn-sub000/internal/events"
	"github.com/MotionAge/sn-sub000/internal/obs"
)

// EmailNotifier sends transactional emails for selected topics.
type EmailNotifier struct {
	Mail         common.EmailSender
	Enabled      bool
	OrgName      string
	TopicToggles map[string]bool
}

// Notify implements the events.Notifier interface.
func (n EmailNotifier) Notify(ctx context.Context, event events.Event) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	to := extractRecipient(payload)
	if to == "" {
		return nil
	}
	body, err := n.bodyFor(event, payload)
	if err != nil {
		return fmt.Errorf("email notify: render %s: %w", event.Topic, err)
	}
	err = n.Mail.Send(ctx, common.EmailMessage{To: to, Subject: n.subjectFor(event.Topic), HTML: body})
	result := "success"
	if err != nil {
		result = "error"
	}
	obs.NotificationTotal.WithLabelValues("email", result).Inc()
	return err
}

func extractRecipient(payload map[string]any) string {
	for _, key := range []string{"email", "recipient", "customerEmail"} {
		if s, ok := payload[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func (n EmailNotifier) subjectFor(topic string) string {
	prefix := ""
	if n.OrgName != "" {
		prefix = n.OrgName + ": "
	}
	switch topic {
	case events.TopicPaymentSucceeded:
		return prefix + "Payment received"
	case events.TopicPaymentFailed:
		return prefix + "Payment was not completed"
	case events.TopicDonationCompleted:
		return prefix + "Thank you for your donation"
	case events.TopicMembershipActivated:
		return prefix + "Your membership is active"
	case events.TopicEventRegistrationConfirmed:
		return prefix + "Event registration confirmed"
	default:
		return prefix + "Notification " + topic
	}
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
<p>Dear {{if .Name}}{{.Name}}{{else}}supporter{{end}},</p>
<p>{{.Lead}}</p>
<table cellpadding="4">
{{- range .Rows}}
<tr><td><strong>{{.Label}}</strong></td><td>{{.Value}}</td></tr>
{{- end}}
</table>
{{- if .Link}}
<p><a href="{{.Link}}">{{.LinkText}}</a></p>
{{- end}}
<p>{{.Closing}}</p>
<p style="color:#888;font-size:12px">{{.OrgName}} &middot; {{.Occurred}}</p>
</body></html>
`))

type emailRow struct {
	Label string
	Value string
}

type emailView struct {
	Name     string
	Lead     string
	Rows     []emailRow
	Link     string
	LinkText string
	Closing  string
	OrgName  string
	Occurred string
}

func (n EmailNotifier) bodyFor(event events.Event, payload map[string]any) (string, error) {
	str := func(key string) string {
		switch v := payload[key].(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return fmt.Sprint(v)
		default:
			return ""
		}
	}
	view := emailView{
		Name:     str("name"),
		OrgName:  n.OrgName,
		Occurred: event.OccurredAt.Format(time.RFC1123),
		Closing:  "With gratitude,",
	}
	add := func(label, key string) {
		if v := str(key); v != "" {
			view.Rows = append(view.Rows, emailRow{Label: label, Value: v})
		}
	}
	amount := strings.TrimSpace(str("currency") + " " + str("amount"))

	switch event.Topic {
	case events.TopicPaymentSucceeded:
		view.Lead = "We have received your payment."
		add("Order", "orderId")
		if amount != "" {
			view.Rows = append(view.Rows, emailRow{Label: "Amount", Value: amount})
		}
		add("Method", "method")
		add("Transaction ID", "transactionId")
	case events.TopicPaymentFailed:
		view.Lead = "Your payment could not be confirmed. No amount has been recorded against your order; you may try again."
		add("Order", "orderId")
		add("Method", "method")
	case events.TopicDonationCompleted:
		view.Lead = "Thank you for your generous donation. Your support sustains our work."
		add("Receipt number", "receiptNumber")
		if amount != "" {
			view.Rows = append(view.Rows, emailRow{Label: "Amount", Value: amount})
		}
		add("Purpose", "purpose")
		view.Link, view.LinkText = str("receiptUrl"), "Download your receipt"
	case events.TopicMembershipActivated:
		view.Lead = "Welcome! Your membership has been activated."
		add("Membership type", "membershipType")
		add("Certificate number", "certificateNumber")
		add("Valid until", "validUntil")
		view.Link, view.LinkText = str("certificateUrl"), "Download your membership certificate"
	case events.TopicEventRegistrationConfirmed:
		view.Lead = "Your event registration is confirmed. We look forward to seeing you."
		add("Event", "eventName")
		add("Registration number", "registrationNumber")
		view.Link, view.LinkText = str("receiptUrl"), "Download your receipt"
	default:
		view.Lead = "Event " + event.Topic
		add("Order", "orderId")
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
