package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IDDocumentType identifies the personal document a founder presented.
type IDDocumentType string

const (
	IDCard   IDDocumentType = "ID_CARD"
	Passport IDDocumentType = "PASSPORT"
)

// FormationRequest is one application to register a company.
type FormationRequest struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"userId"`
	CompanyName    string          `json:"companyName"`
	CompanyType    string          `json:"companyType"`
	Capital        decimal.Decimal `json:"capital"`
	Address        string          `json:"address"`
	City           string          `json:"city"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	ActivityCodeID int64           `json:"activityCodeId"`
	Activity       *ActivityCode   `json:"activityCode,omitempty"`
	Status         Status          `json:"status"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	Founders       []Founder       `json:"founders"`
	Payment        *Payment        `json:"payment,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// OwnedBy reports whether the request belongs to the given user.
func (r *FormationRequest) OwnedBy(userID int64) bool {
	return r.UserID == userID
}

// Founder is a natural person holding a share of the company.
type Founder struct {
	ID              int64           `json:"id"`
	RequestID       int64           `json:"requestId"`
	Name            string          `json:"name"`
	IsResident      bool            `json:"isResident"`
	PersonalNumber  string          `json:"personalNumber,omitempty"`
	IDDocumentType  IDDocumentType  `json:"idDocumentType"`
	IDNumber        string          `json:"idNumber"`
	IssuedBy        string          `json:"issuedBy,omitempty"`
	BirthPlace      string          `json:"birthPlace,omitempty"`
	Address         string          `json:"address"`
	SharePercentage decimal.Decimal `json:"sharePercentage"`
}

// ActivityCode is an entry of the national business-activity classification.
type ActivityCode struct {
	ID          int64  `json:"id" yaml:"-"`
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description" yaml:"description"`
	IsActive    bool   `json:"isActive" yaml:"active"`
}

// Payment is maintained by the payment side of the business and only read
// here.
type Payment struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Reference  string          `json:"reference"`
	ApprovedAt *time.Time      `json:"approvedAt,omitempty"`
	ApprovedBy string          `json:"approvedBy,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// SharesTotal sums the founders' ownership shares exactly.
func SharesTotal(founders []Founder) decimal.Decimal {
	total := decimal.Zero
	for _, f := range founders {
		total = total.Add(f.SharePercentage)
	}
	return total
}

// RequestFilter narrows administrative listings.
type RequestFilter struct {
	Status Status
	UserID int64
	Limit  int
	Offset int
}
