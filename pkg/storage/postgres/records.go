package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cadence is the billing period of a subscription.
type Cadence string

const (
	CadenceMonthly Cadence = "monthly"
	CadenceYearly  Cadence = "yearly"
)

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	return c == CadenceMonthly || c == CadenceYearly
}

// TransactionStatus is the verification state of a payment.
// pending -> verified and pending -> abandoned are the only transitions.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusVerified  TransactionStatus = "verified"
	StatusAbandoned TransactionStatus = "abandoned"
)

type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// PlanRecord is a purchasable subscription plan.
type PlanRecord struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Description  string          `gorm:"type:text;not null" json:"description"`
	MonthlyPrice decimal.Decimal `gorm:"type:numeric;not null" json:"monthlyPrice"`
	YearlyPrice  decimal.Decimal `gorm:"type:numeric;not null" json:"yearlyPrice"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName overrides the default table name for GORM.
func (PlanRecord) TableName() string {
	return "plan"
}

// Price returns the plan price for a cadence.
func (p PlanRecord) Price(c Cadence) decimal.Decimal {
	if c == CadenceYearly {
		return p.YearlyPrice
	}
	return p.MonthlyPrice
}

// UserRecord holds a user and the state of their subscription.
// SubscriptionActive implies ExpirationDate is set.
type UserRecord struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Email     string `gorm:"type:text;not null;uniqueIndex" json:"email"`
	FirstName string `gorm:"type:text" json:"firstName"`
	LastName  string `gorm:"type:text" json:"lastName"`
	Role      Role   `gorm:"type:varchar(10);not null;default:User" json:"role"`

	SubscriptionActive bool       `gorm:"not null;default:false;index:idx_user_active_expiration" json:"subscriptionStatus"`
	PlanID             *uint      `gorm:"index" json:"planId"`
	Cadence            Cadence    `gorm:"type:varchar(10)" json:"purchaseType,omitempty"`
	PurchaseDate       *time.Time `json:"purchaseDate"`
	ExpirationDate     *time.Time `gorm:"index:idx_user_active_expiration" json:"expirationDate"`
	LastReminderAt     *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName overrides the default table name for GORM.
func (UserRecord) TableName() string {
	return "app_user"
}

// TransactionRecord is a payment hash submitted by a user for a plan.
type TransactionRecord struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;index" json:"userId"`
	Hash   string `gorm:"type:text;not null;uniqueIndex" json:"hash"`

	PurchaseDate   time.Time `gorm:"not null;index:idx_tx_status_purchase" json:"purchaseDate"`
	ExpirationDate time.Time `gorm:"not null" json:"expirationDate"`
	PlanID         uint      `gorm:"not null" json:"planId"`
	Cadence        Cadence   `gorm:"type:varchar(10);not null" json:"purchaseType"`

	Status      TransactionStatus `gorm:"type:varchar(10);not null;default:pending;index:idx_tx_status_purchase" json:"status"`
	VerifiedAt  *time.Time        `json:"verifiedAt"`
	ActivatedAt *time.Time        `json:"activatedAt"` // set once the subscription was updated for this payment

	CreatedAt time.Time `json:"createdAt"`
}

// TableName overrides the default table name for GORM.
func (TransactionRecord) TableName() string {
	return "payment_transaction"
}

// Verified reports whether the payment was confirmed on chain.
func (t TransactionRecord) Verified() bool {
	return t.Status == StatusVerified
}

// PriceSampleRecord is one captured floor price.
type PriceSampleRecord struct {
	ID     uint            `gorm:"primaryKey"`
	Symbol string          `gorm:"type:text;not null;index:idx_price_symbol_time"`
	Price  decimal.Decimal `gorm:"type:numeric;not null"`
	Time   time.Time       `gorm:"not null;index:idx_price_symbol_time"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (PriceSampleRecord) TableName() string {
	return "price_sample"
}
