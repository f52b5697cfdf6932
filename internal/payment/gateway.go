package payment

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/fjod/go_cart/checkout-core/domain"
)

// Callback and request parameter names of the provider.
const (
	ParamVersion           = "vnp_Version"
	ParamCommand           = "vnp_Command"
	ParamTmnCode           = "vnp_TmnCode"
	ParamAmount            = "vnp_Amount"
	ParamCurrCode          = "vnp_CurrCode"
	ParamTxnRef            = "vnp_TxnRef"
	ParamOrderInfo         = "vnp_OrderInfo"
	ParamOrderType         = "vnp_OrderType"
	ParamLocale            = "vnp_Locale"
	ParamReturnURL         = "vnp_ReturnUrl"
	ParamIPAddr            = "vnp_IpAddr"
	ParamCreateDate        = "vnp_CreateDate"
	ParamExpireDate        = "vnp_ExpireDate"
	ParamResponseCode      = "vnp_ResponseCode"
	ParamTransactionStatus = "vnp_TransactionStatus"
	ParamTransactionNo     = "vnp_TransactionNo"
	ParamBankCode          = "vnp_BankCode"
	ParamPayDate           = "vnp_PayDate"
)

const (
	apiVersion = "2.1.0"
	payCommand = "pay"
	orderType  = "other"
	dateLayout = "20060102150405"
)

type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
	Locale     string
	Currency   string
	Expire     time.Duration
}

// Gateway builds signed payment redirects and authenticates callbacks.
type Gateway struct {
	cfg    Config
	signer *Signer
	loc    *time.Location
}

func NewGateway(cfg Config) *Gateway {
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	if cfg.Currency == "" {
		cfg.Currency = "VND"
	}
	if cfg.Expire <= 0 {
		cfg.Expire = 15 * time.Minute
	}
	return &Gateway{cfg: cfg, signer: NewSigner(cfg.HashSecret), loc: gatewayLocation()}
}

// gatewayLocation is the provider's wall clock. Containers without tzdata get
// the fixed +07:00 offset.
func gatewayLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
}

// BuildPaymentURL returns the provider redirect for order. The amount is sent
// in minor units.
func (g *Gateway) BuildPaymentURL(order *domain.Order, clientIP string, now time.Time) (string, error) {
	base, err := url.Parse(g.cfg.PayURL)
	if err != nil {
		return "", fmt.Errorf("invalid payment url: %w", err)
	}

	local := now.In(g.loc)
	params := map[string]string{
		ParamVersion:    apiVersion,
		ParamCommand:    payCommand,
		ParamTmnCode:    g.cfg.TmnCode,
		ParamAmount:     strconv.FormatInt(MinorUnits(order.Total), 10),
		ParamCurrCode:   g.cfg.Currency,
		ParamTxnRef:     order.OrderNumber,
		ParamOrderInfo:  "Payment for order " + order.OrderNumber,
		ParamOrderType:  orderType,
		ParamLocale:     g.cfg.Locale,
		ParamReturnURL:  g.cfg.ReturnURL,
		ParamIPAddr:     clientIP,
		ParamCreateDate: local.Format(dateLayout),
		ParamExpireDate: local.Add(g.cfg.Expire).Format(dateLayout),
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	query.Set(ParamSecureHash, g.signer.Sign(params))
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// Verify checks the callback signature.
func (g *Gateway) Verify(params map[string]string) error {
	if !g.signer.Verify(params, params[ParamSecureHash]) {
		return domain.ErrInvalidCallback
	}
	return nil
}

// Sign returns params with a valid signature attached. Used by test tooling
// that simulates the provider.
func (g *Gateway) Sign(params map[string]string) map[string]string {
	signed := make(map[string]string, len(params)+1)
	for k, v := range params {
		signed[k] = v
	}
	signed[ParamSecureHash] = g.signer.Sign(params)
	return signed
}

// ParsePayDate reads a provider timestamp in the gateway's time zone.
func (g *Gateway) ParsePayDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, g.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid pay date %q: %w", value, err)
	}
	return t.UTC(), nil
}

// MinorUnits converts a whole-unit amount to the provider's representation.
func MinorUnits(amount int64) int64 {
	return amount * 100
}
