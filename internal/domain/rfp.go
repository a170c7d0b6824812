package domain

import "time"

// RFPSummary is one candidate opportunity returned by the discovery capability
// and listed to the user for selection.
type RFPSummary struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	ClientName            string     `json:"client_name"`
	Description           string     `json:"description,omitempty"`
	SubmissionDate        *time.Time `json:"submission_date,omitempty"`
	BudgetRange           string     `json:"budget_range,omitempty"`
	PriorityScore         int        `json:"priority_score,omitempty"`
	TechnicalRequirements []string   `json:"technical_requirements,omitempty"`
}

// TechnicalAnalysis is the closed result variant produced by the
// TECHNICAL_ANALYSIS step.
type TechnicalAnalysis struct {
	Summary         string         `json:"summary"`
	MatchedProducts []ProductMatch `json:"matched_products,omitempty"`
	RequiredTests   []string       `json:"required_tests,omitempty"`
	Risks           []string       `json:"risks,omitempty"`
	Coverage        float64        `json:"coverage"` // 0..1 share of requirements met
}

// ProductMatch ties one RFP requirement to a catalog product.
type ProductMatch struct {
	Requirement string `json:"requirement"`
	SKU         string `json:"sku"`
	ProductName string `json:"product_name"`
	Note        string `json:"note,omitempty"`
}

// PricingAnalysis is the closed result variant produced by the
// PRICING_ANALYSIS step.
type PricingAnalysis struct {
	Currency    string          `json:"currency"`
	LineItems   []PriceLineItem `json:"line_items,omitempty"`
	TestingCost float64         `json:"testing_cost"`
	Subtotal    float64         `json:"subtotal"`
	Total       float64         `json:"total"`
	Notes       string          `json:"notes,omitempty"`
}

// PriceLineItem is one priced position of the offer.
type PriceLineItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Amount    float64 `json:"amount"`
}
