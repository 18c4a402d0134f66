package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/sahaana/coopvault/backend/internal/domain"
	"github.com/sahaana/coopvault/backend/internal/mail"
)

// ConfirmationEmail builds the payment confirmation sent to the owner after
// an approval. The reference is the external transactionId when present.
func ConfirmationEmail(user domain.User, tx domain.Transaction, now time.Time) mail.Message {
	txType := tx.Type
	if txType == "" {
		txType = "Payment"
	}

	amount := strings.TrimSpace(fmt.Sprintf("%g %s", tx.Amount, tx.Currency))
	reference := tx.Ref()
	when := tx.Timestamp
	if when.IsZero() {
		when = now
	}

	html := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your %s has been confirmed by our team.</p>
<p><strong>Type:</strong> %s<br/>
<strong>Amount:</strong> %s<br/>
<strong>Reference:</strong> %s<br/>
<strong>Date:</strong> %s</p>
<p>If you have questions reply to this email or contact support.</p>`,
		user.Name, strings.ToLower(txType), txType, amount, reference, when.Format(time.RFC1123))

	return mail.Message{
		To:      user.Email,
		Subject: "Payment confirmed: " + txType,
		HTML:    html,
		Text: fmt.Sprintf("Your %s of %s has been confirmed. Reference: %s",
			txType, amount, reference),
	}
}
