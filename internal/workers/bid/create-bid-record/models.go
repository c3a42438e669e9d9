// internal/workers/bid/create-bid-record/models.go
package createbidrecord

import "takeoff-workers/internal/models"

type Input struct {
	TakeoffID    string              `json:"takeoffId"`
	ProjectName  string              `json:"projectName"`
	CustomerID   string              `json:"customerId"`
	ReviewReport models.ReviewReport `json:"reviewReport"`
}

type Output struct {
	BidID     string `json:"bidId"`
	BidStatus string `json:"bidStatus"`
	CreatedAt string `json:"createdAt"`
}
