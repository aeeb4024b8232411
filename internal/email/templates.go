package email

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderItem is one order line as shown in mail
type OrderItem struct {
	Name               string
	Quantity           int
	UnitPrice          decimal.Decimal
	SelectedVariations map[string]string
}

const layout = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #1f7a4d; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>
	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">%s</p>
		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>
		%s
		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total</span>
			<span style="font-size: 24px; font-weight: bold; color: #1f7a4d; margin-left: 10px;">%s</span>
		</div>
		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
		<p style="font-size: 12px; color: #999; margin-bottom: 0;">This is an automated message. Contact support if you have any questions.</p>
	</div>
</body>
</html>`

// BuildOrderReceivedBody renders the order summary sent when an order is placed
func BuildOrderReceivedBody(orderID string, total decimal.Decimal, items []OrderItem) string {
	var rows strings.Builder
	for _, item := range items {
		name := html.EscapeString(item.Name)
		if v := variationLabel(item.SelectedVariations); v != "" {
			name += `<br><span style="font-size: 12px; color: #666;">` + html.EscapeString(v) + `</span>`
		}
		rows.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			name,
			item.Quantity,
			FormatPeso(item.UnitPrice),
			FormatPeso(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))),
		))
	}

	table := fmt.Sprintf(`<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left;">Item</th>
					<th style="padding: 12px; text-align: center;">Qty</th>
					<th style="padding: 12px; text-align: right;">Price</th>
					<th style="padding: 12px; text-align: right;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>`, rows.String())

	return fmt.Sprintf(layout,
		"Thank you for your order",
		"We have received your order and are waiting for your payment to complete.",
		html.EscapeString(orderID), table, FormatPeso(total))
}

// BuildPaymentConfirmedBody renders the receipt sent once payment succeeds
func BuildPaymentConfirmedBody(orderID string, total decimal.Decimal) string {
	return fmt.Sprintf(layout,
		"Payment received",
		"Your payment was successful. We are now preparing your order for shipping.",
		html.EscapeString(orderID), "", FormatPeso(total))
}

// FormatPeso renders an amount like ₱1,234.50
func FormatPeso(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		grouped.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if grouped.Len() > 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteString(whole[i : i+3])
	}
	return sign + "₱" + grouped.String() + "." + frac
}

func variationLabel(v map[string]string) string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return strings.Join(parts, ", ")
}
