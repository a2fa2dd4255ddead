package transport

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateOrderItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// CreateOrderRequest carries an optional client-computed Total. When present
// it must match the server's sum.
type CreateOrderRequest struct {
	CustomerName    string            `json:"customer_name"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerPhone   string            `json:"customer_phone"`
	ShippingAddress string            `json:"shipping_address"`
	Total           *decimal.Decimal  `json:"total"`
	Items           []CreateOrderItem `json:"items"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

type CreateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Type        string          `json:"type"`
	AgeRange    string          `json:"age_range"`
	Category    string          `json:"category"`
	Stock       *int            `json:"stock"`
}

type PatchProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	ImageURL    *string          `json:"image_url"`
	Type        *string          `json:"type"`
	AgeRange    *string          `json:"age_range"`
	Category    *string          `json:"category"`
	Stock       *int             `json:"stock"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type UpdateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type RecoverRequest struct {
	Email string `json:"email"`
}

type ResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type AdminConfigPatch struct {
	SMTPHost         *string `json:"smtp_host"`
	SMTPPort         *int    `json:"smtp_port"`
	SMTPUser         *string `json:"smtp_user"`
	SMTPPassword     *string `json:"smtp_password"`
	MailFrom         *string `json:"mail_from"`
	PaymentProvider  *string `json:"payment_provider"`
	PaymentPublicKey *string `json:"payment_public_key"`
	PaymentSecretKey *string `json:"payment_secret_key"`
}

type LoginResult struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
	IsAdmin      bool      `json:"is_admin"`
}
