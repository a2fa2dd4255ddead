package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	ProductPhysical = "physical"
	ProductDigital  = "digital"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"       json:"id"`
	Email        string    `gorm:"uniqueIndex;not null"       json:"email"`
	PasswordHash string    `gorm:"not null"                   json:"-"`
	Name         string    `gorm:"not null"                   json:"name"`
	Role         string    `gorm:"not null;default:user"      json:"role"`
	CreatedAt    time.Time `gorm:"not null"                   json:"created_at"`
	UpdatedAt    time.Time `                                  json:"updated_at"`
}

type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"          json:"id"`
	Name        string          `gorm:"not null"                      json:"name"`
	Description string          `gorm:"not null"                      json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null"   json:"price"`
	ImageURL    string          `                                     json:"image_url"`
	Type        string          `gorm:"not null;default:physical"     json:"type"`
	AgeRange    string          `                                     json:"age_range"`
	Category    string          `gorm:"index"                         json:"category"`
	Stock       *int            `                                     json:"stock"`
	Active      bool            `gorm:"not null;default:true;index"   json:"active"`
	CreatedAt   time.Time       `                                     json:"created_at"`
	UpdatedAt   time.Time       `                                     json:"updated_at"`
}

type Order struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"          json:"id"`
	UserID          *uuid.UUID      `gorm:"type:uuid;index"               json:"user_id"`
	Total           decimal.Decimal `gorm:"type:decimal(10,2);not null"   json:"total"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	CustomerName    string          `gorm:"not null"                      json:"customer_name"`
	CustomerEmail   string          `gorm:"not null"                      json:"customer_email"`
	CustomerPhone   string          `                                     json:"customer_phone"`
	ShippingAddress string          `gorm:"not null"                      json:"shipping_address"`
	CreatedAt       time.Time       `gorm:"not null;index"                json:"created_at"`
	Items           []OrderItem     `gorm:"constraint:OnDelete:CASCADE"   json:"items"`
}

type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"          json:"id"`
	OrderID   uuid.UUID       `gorm:"type:uuid;index;not null"      json:"order_id"`
	ProductID uuid.UUID       `gorm:"type:uuid;index;not null"      json:"product_id"`
	Line      int             `gorm:"not null;default:0"            json:"line"`
	Quantity  int             `gorm:"not null;check:quantity > 0"   json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null"   json:"price"`
	Product   *Product        `gorm:"foreignKey:ProductID"          json:"product,omitempty"`
}

// AdminConfig holds a single row keyed by AdminConfigID.
type AdminConfig struct {
	ID               uint      `gorm:"primaryKey;autoIncrement:false" json:"-"`
	SMTPHost         string    `json:"smtp_host"`
	SMTPPort         int       `json:"smtp_port"`
	SMTPUser         string    `json:"smtp_user"`
	SMTPPassword     string    `json:"smtp_password"`
	MailFrom         string    `json:"mail_from"`
	PaymentProvider  string    `json:"payment_provider"`
	PaymentPublicKey string    `json:"payment_public_key"`
	PaymentSecretKey string    `json:"payment_secret_key"`
	UpdatedAt        time.Time `json:"updated_at"`
}

const AdminConfigID uint = 1

type PasswordResetToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"    json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	TokenHash string    `gorm:"uniqueIndex;not null"    json:"-"`
	ExpiresAt time.Time `gorm:"not null"                json:"expires_at"`
	CreatedAt time.Time `gorm:"not null"                json:"created_at"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"               json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	JTI       string    `gorm:"uniqueIndex;not null"     json:"jti"`
	TokenHash string    `gorm:"index;not null"           json:"-"`
	ExpiresAt time.Time `gorm:"not null"                 json:"expires_at"`
	Revoked   bool      `gorm:"default:false"            json:"revoked"`
}

func All() []any {
	return []any{
		&User{},
		&Product{},
		&Order{},
		&OrderItem{},
		&AdminConfig{},
		&PasswordResetToken{},
		&RefreshToken{},
	}
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (t *PasswordResetToken) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (p *Product) IsPhysical() bool {
	return p.Type == ProductPhysical
}
