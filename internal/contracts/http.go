package contracts

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

type CustomerDetails struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company,omitempty"`
	TaxID   string `json:"taxId,omitempty"`
}

type CreateOrderRequest struct {
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency,omitempty"`
	CustomerDetails CustomerDetails `json:"customerDetails"`
	ReferralCode    *string         `json:"referralCode,omitempty"`
}

type CreateOrderResponse struct {
	Success  bool   `json:"success"`
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Key      string `json:"key"`
}

type OrderStatusResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type WebhookResponse struct {
	Status string `json:"status"`
}

type SubmitReferralRequest struct {
	ReferredEmail string `json:"referredEmail"`
	ReferredName  string `json:"referredName"`
	FirmName      string `json:"firmName,omitempty"`
}

type ReferralResponse struct {
	ID            string  `json:"id"`
	AffiliateID   string  `json:"affiliateId"`
	ReferredEmail string  `json:"referredEmail"`
	ReferredName  string  `json:"referredName"`
	FirmName      string  `json:"firmName,omitempty"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"createdAt"`
	ConvertedAt   *string `json:"convertedAt,omitempty"`
}

type SubmitReferralResponse struct {
	Success  bool             `json:"success"`
	Referral ReferralResponse `json:"referral"`
}

type RegisterAffiliateRequest struct {
	FirmName     string `json:"firmName"`
	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
	Phone        string `json:"phone,omitempty"`
}

type AffiliateResponse struct {
	AffiliateID  string `json:"affiliateId"`
	ReferralCode string `json:"referralCode"`
	FirmName     string `json:"firmName"`
	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
	Phone        string `json:"phone,omitempty"`
	Status       string `json:"status"`
}

type CommissionResponse struct {
	ID          string `json:"id"`
	AffiliateID string `json:"affiliateId"`
	ReferralID  string `json:"referralId"`
	OrderID     string `json:"orderId"`
	PaymentID   string `json:"paymentId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type InvoiceResponse struct {
	Number    string `json:"invoiceNumber"`
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Currency  string `json:"currency"`
	Subtotal  int64  `json:"subtotal"`
	TaxRate   string `json:"taxRatePercent"`
	Tax       int64  `json:"tax"`
	Total     int64  `json:"total"`
	Status    string `json:"status"`
	IssuedAt  string `json:"issuedAt"`
}
