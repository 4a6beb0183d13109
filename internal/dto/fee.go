package dto

import "github.com/noah-isme/tkd-admin-api/internal/models"

// FeeListResponse is the monthly ledger view: the fees of the month plus its rollup.
type FeeListResponse struct {
	Fees       []models.FeeRecord   `json:"fees"`
	Statistics models.FeeStatistics `json:"statistics"`
}
