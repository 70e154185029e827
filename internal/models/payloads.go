package models

import "github.com/shopspring/decimal"

// These structs define the JSON payloads exchanged with API clients and
// between the outbox relay and the document worker.

// CreateRequestPayload is the body of POST /company-request.
type CreateRequestPayload struct {
	CompanyName  string           `json:"companyName" validate:"required,max=200"`
	CompanyType  string           `json:"companyType" validate:"required,max=20"`
	Capital      decimal.Decimal  `json:"capital"`
	Address      string           `json:"address" validate:"required,max=300"`
	City         string           `json:"city" validate:"max=100"`
	Email        string           `json:"email" validate:"required,email"`
	Phone        string           `json:"phone" validate:"required,max=40"`
	ActivityCode string           `json:"activityCode" validate:"required"`
	Founders     []FounderPayload `json:"founders" validate:"required,min=1,dive"`
}

// FounderPayload is one founder inside CreateRequestPayload.
type FounderPayload struct {
	Name            string          `json:"name" validate:"required,max=200"`
	IsResident      bool            `json:"isResident"`
	PersonalNumber  string          `json:"personalNumber" validate:"max=20"`
	IDDocumentType  string          `json:"idDocumentType" validate:"omitempty,oneof=ID_CARD PASSPORT"`
	IDNumber        string          `json:"idNumber" validate:"required,max=50"`
	IssuedBy        string          `json:"issuedBy" validate:"max=200"`
	BirthPlace      string          `json:"birthPlace" validate:"max=200"`
	Address         string          `json:"address" validate:"required,max=300"`
	SharePercentage decimal.Decimal `json:"sharePercentage"`
}

// StatusUpdatePayload is the body of the privileged status endpoint.
type StatusUpdatePayload struct {
	Status string `json:"status"`
}

// PaymentInstructions tells the owner how to pay for a request.
type PaymentInstructions struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	AccountNumber string          `json:"accountNumber"`
	BankName      string          `json:"bankName"`
	Swift         string          `json:"swift"`
	Reference     string          `json:"reference"`
	Instructions  string          `json:"instructions"`
}

// ConfirmPaymentResponse is returned after the owner confirms intent to pay.
type ConfirmPaymentResponse struct {
	Message             string              `json:"message"`
	Status              Status              `json:"status"`
	PaymentInstructions PaymentInstructions `json:"paymentInstructions"`
}

// StatusUpdateResponse is returned by the privileged status endpoint.
type StatusUpdateResponse struct {
	Message             string `json:"message"`
	Previous            Status `json:"previousStatus"`
	Status              Status `json:"status"`
	GenerationRequested bool   `json:"generationRequested"`
}

// RequestDetail is the owner's view of one request.
type RequestDetail struct {
	*FormationRequest
	Documents           []GeneratedDocument `json:"documents"`
	PaymentInstructions PaymentInstructions `json:"paymentInstructions"`
	Generation          *GenerationState    `json:"generation,omitempty"`
}

// GenerateDocumentsResponse is returned by generation and regeneration.
type GenerateDocumentsResponse struct {
	Message  string             `json:"message"`
	Created  bool               `json:"created"`
	Document *GeneratedDocument `json:"document"`
}

// GenerationRequestedEvent is the outbox payload written when a request is
// marked PAID.
type GenerationRequestedEvent struct {
	RequestID   int64  `json:"requestId"`
	RequestedBy string `json:"requestedBy"`
}
