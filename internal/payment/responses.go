package payment

import "github.com/fjod/go_cart/checkout-core/domain"

const successCode = "00"

var responseDescriptions = map[string]string{
	"00": "transaction successful",
	"07": "amount debited, transaction suspected of fraud",
	"09": "card or account not registered for internet banking",
	"10": "card or account authentication failed more than 3 times",
	"11": "payment window expired",
	"12": "card or account is locked",
	"13": "wrong one-time password",
	"24": "customer cancelled the transaction",
	"51": "insufficient account balance",
	"65": "daily transaction limit exceeded",
	"75": "issuing bank under maintenance",
	"79": "wrong payment password entered too many times",
	"99": "other error",
}

// MapResponseCode maps the provider's response and transaction status codes
// to a payment status. Only a double success is a payment.
func MapResponseCode(responseCode, transactionStatus string) domain.PaymentStatus {
	if responseCode == successCode && transactionStatus == successCode {
		return domain.PaymentStatusPaid
	}
	return domain.PaymentStatusFailed
}

// DescribeResponseCode returns a human-readable reason for a provider code.
func DescribeResponseCode(code string) string {
	if d, ok := responseDescriptions[code]; ok {
		return d
	}
	return "unknown response code"
}
