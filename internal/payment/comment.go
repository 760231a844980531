package payment

import (
	"fmt"
	"strings"
	"time"

	"shoppay/internal/types"
)

const blockSeparator = "--------------------------------------------------"

// refundTimeLayout renders timestamps the way the admin backend displays
// them: day first, 24-hour clock, no seconds.
const refundTimeLayout = "02.01.2006 15:04"

// BuildRefundBlock renders the text block appended to an order's internal
// comment after a successful refund. The block starts with a blank line so it
// separates cleanly from whatever text is already on the order, then carries
// a separator, a timestamp, the refunded amount, the optional operator
// comment, and one line per refunded position in the order they were
// submitted.
func BuildRefundBlock(now time.Time, amount float64, currency string, comment string, positions []types.RefundPosition) string {
	var b strings.Builder

	b.WriteString("\n\n")
	b.WriteString(blockSeparator)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Stripe refund (%s)\n", now.Format(refundTimeLayout))
	fmt.Fprintf(&b, "Amount: %s\n", FormatCurrency(amount, currency))

	if comment != "" {
		fmt.Fprintf(&b, "Comment: %s\n", comment)
	}

	if len(positions) > 0 {
		b.WriteString("Positions:\n")
		for _, p := range positions {
			fmt.Fprintf(&b, "%d x %s (%s each): %s\n",
				p.Quantity,
				p.ArticleNumber,
				FormatCurrency(p.Price, currency),
				FormatCurrency(p.Total, currency),
			)
		}
	}

	b.WriteString(blockSeparator)
	return b.String()
}

// BuildExternalRefundBlock renders the audit block appended when a refund is
// observed through the Stripe webhook rather than issued by this service.
// amountMinor is in the currency's minor unit as reported by Stripe.
func BuildExternalRefundBlock(now time.Time, amountMinor int64, currency string, refundID string) string {
	var b strings.Builder

	b.WriteString("\n\n")
	b.WriteString(blockSeparator)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Stripe refund received via webhook (%s)\n", now.Format(refundTimeLayout))
	fmt.Fprintf(&b, "Amount: %s\n", FormatCurrency(float64(amountMinor)/100, currency))
	fmt.Fprintf(&b, "Stripe refund id: %s\n", refundID)
	b.WriteString(blockSeparator)
	return b.String()
}
