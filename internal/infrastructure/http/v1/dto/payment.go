package dto

import (
	"routeledger/internal/domain/payment"
)

// RecordPaymentRequest records money received from a shop.
type RecordPaymentRequest struct {
	ShopID string `json:"shopId" binding:"required,uuid"`
	Amount string `json:"amount" binding:"required,decimal"`
	Source string `json:"source" binding:"omitempty,oneof=delivery manual"`
	Date   string `json:"date" binding:"omitempty,bizdate"`
	Note   string `json:"note" binding:"max=500"`
}

// ToDomain converts the request. Source defaults to delivery.
func (r RecordPaymentRequest) ToDomain() (payment.PaymentRequest, error) {
	shopID, err := ParseID("shopId", r.ShopID)
	if err != nil {
		return payment.PaymentRequest{}, err
	}
	amount, err := parseMoney("amount", r.Amount)
	if err != nil {
		return payment.PaymentRequest{}, err
	}
	date, err := ParseDate("date", r.Date)
	if err != nil {
		return payment.PaymentRequest{}, err
	}
	source := payment.Source(r.Source)
	if source == "" {
		source = payment.SourceDelivery
	}
	return payment.PaymentRequest{
		ShopID: shopID,
		Amount: amount,
		Source: source,
		Date:   date,
		Note:   r.Note,
	}, nil
}

// AddPendingRequest records a manual pending amount.
type AddPendingRequest struct {
	ShopID string `json:"shopId" binding:"required,uuid"`
	Amount string `json:"amount" binding:"required,decimal"`
	Date   string `json:"date" binding:"omitempty,bizdate"`
	Note   string `json:"note" binding:"max=500"`
}

// ToDomain converts the request.
func (r AddPendingRequest) ToDomain() (payment.PendingRequest, error) {
	shopID, err := ParseID("shopId", r.ShopID)
	if err != nil {
		return payment.PendingRequest{}, err
	}
	amount, err := parseMoney("amount", r.Amount)
	if err != nil {
		return payment.PendingRequest{}, err
	}
	date, err := ParseDate("date", r.Date)
	if err != nil {
		return payment.PendingRequest{}, err
	}
	return payment.PendingRequest{ShopID: shopID, Amount: amount, Date: date, Note: r.Note}, nil
}
