package http

import (
	"time"

	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/utils"
)

type ErrorResponse struct {
	Message string `json:"message"`
}

type CheckoutRequest struct {
	UserID        string `json:"userId" validate:"required"`
	ProductID     string `json:"productId" validate:"required"`
	ProductName   string `json:"productName"`
	MemoryMB      int    `json:"memoryMb"`
	Price         int64  `json:"price" validate:"gt=0"`
	PromoCode     string `json:"promoCode"`
	CustomerName  string `json:"customerName" validate:"required"`
	CustomerEmail string `json:"customerEmail" validate:"required,email"`
	CustomerPhone string `json:"customerPhone"`
	ReturnURL     string `json:"returnUrl" validate:"omitempty,url"`
}

type CheckoutResponse struct {
	OrderID     string `json:"orderId"`
	ClientTxnID string `json:"clientTxnId"`
	Gateway     string `json:"gateway"`
	PaymentURL  string `json:"paymentUrl"`
}

type RenewRequest struct {
	UserID        string `json:"userId" validate:"required"`
	CustomerName  string `json:"customerName" validate:"required"`
	CustomerEmail string `json:"customerEmail" validate:"required,email"`
	CustomerPhone string `json:"customerPhone"`
	ReturnURL     string `json:"returnUrl" validate:"omitempty,url"`
}

type RenewResponse struct {
	OrderID      string `json:"orderId"`
	RenewalTxnID string `json:"renewalTxnId"`
	Gateway      string `json:"gateway"`
	PaymentURL   string `json:"paymentUrl"`
}

type SubmitActionRequest struct {
	OrderID string                 `json:"orderId" validate:"required"`
	UserID  string                 `json:"userId" validate:"required"`
	Action  string                 `json:"action" validate:"required"`
	Payload map[string]interface{} `json:"payload"`
}

type OrderResponse struct {
	ID                 string     `json:"id"`
	ProductName        string     `json:"productName"`
	Status             string     `json:"status"`
	Provider           string     `json:"provider,omitempty"`
	IPAddress          string     `json:"ipAddress,omitempty"`
	Username           string     `json:"username,omitempty"`
	Password           string     `json:"password,omitempty"`
	OS                 string     `json:"os,omitempty"`
	ProvisioningStatus string     `json:"provisioningStatus"`
	ProvisioningError  string     `json:"provisioningError,omitempty"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"`
}

func toOrderResponse(order *db.Order) *OrderResponse {
	return &OrderResponse{
		ID:                 order.ID,
		ProductName:        order.ProductName,
		Status:             order.Status,
		Provider:           order.Provider,
		IPAddress:          order.IPAddress,
		Username:           order.Username,
		Password:           utils.MaskSecret(order.Password, 3),
		OS:                 order.OS,
		ProvisioningStatus: order.ProvisioningStatus,
		ProvisioningError:  order.ProvisioningError,
		ExpiresAt:          order.ExpiresAt,
	}
}
