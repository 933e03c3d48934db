package gateway

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Card carries the raw card fields entered at checkout. Instances must
// only ever reach logs through the redactor.
type Card struct {
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CCV         string `json:"ccv"`
}

// BillingAddress is the customer mailing address tied to the card.
type BillingAddress struct {
	FirstName string
	LastName  string
	Street    string
	City      string
	State     string
	Zip       string
	Country   string
	Phone     string
}

// SaleOrder is the order slice the sale payload needs.
type SaleOrder struct {
	IncrementID   string
	CustomerEmail string
	CurrencyCode  string
}

// SaleRequest is the gateway's sale schema. Field names and shapes
// follow the gateway API; Amount is rendered as a plain JSON number
// with exactly two fractional digits.
type SaleRequest struct {
	FirstName     string      `json:"first_name"`
	LastName      string      `json:"last_name"`
	Email         string      `json:"email"`
	Address       string      `json:"address"`
	City          string      `json:"city"`
	State         string      `json:"state"`
	Zip           string      `json:"zip"`
	Country       string      `json:"country"`
	Phone         string      `json:"phone"`
	IP            string      `json:"ip"`
	Currency      string      `json:"currency"`
	Card          Card        `json:"card"`
	InvoiceNumber string      `json:"invoicenumber"`
	Amount        json.Number `json:"amount"`
}

// BuildSaleRequest maps an order, billing address and card into the
// gateway sale schema. The amount must already be validated strictly
// positive by the caller.
func BuildSaleRequest(ord SaleOrder, addr BillingAddress, card Card, amount decimal.Decimal, clientIP string) SaleRequest {
	if strings.TrimSpace(clientIP) == "" {
		clientIP = "127.0.0.1"
	}
	return SaleRequest{
		FirstName:     addr.FirstName,
		LastName:      addr.LastName,
		Email:         ord.CustomerEmail,
		Address:       streetLine(addr.Street),
		City:          addr.City,
		State:         addr.State,
		Zip:           addr.Zip,
		Country:       addr.Country,
		Phone:         phoneDigits(addr.Phone),
		IP:            clientIP,
		Currency:      ord.CurrencyCode,
		Card:          card,
		InvoiceNumber: ord.IncrementID,
		Amount:        json.Number(amount.StringFixed(2)),
	}
}

// streetLine keeps the first street line, strips line breaks and
// truncates to the gateway's 50 character limit.
func streetLine(street string) string {
	line := street
	if idx := strings.IndexAny(line, "\r\n"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > 50 {
		line = line[:50]
	}
	return line
}

// phoneDigits strips formatting characters and keeps the last 10
// characters, the gateway's expected national number length.
func phoneDigits(phone string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '(', ')', '+', '-':
			return -1
		}
		return r
	}, phone)
	if len(cleaned) > 10 {
		cleaned = cleaned[len(cleaned)-10:]
	}
	return cleaned
}
