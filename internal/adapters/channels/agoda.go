package channels

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"staysync/internal/domain"
)

// agoda speaks a YCS-style JSON API: API-key header, property code in the
// body, and only rejected items echoed back (anything not listed applied).
type agoda struct {
	rc           *restClient
	propertyCode string
}

func newAgoda(base string, creds domain.Credentials, rps int) *agoda {
	key := creds["api_key"]
	return &agoda{
		rc: newRESTClient("agoda", base, rps, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+key)
		}),
		propertyCode: creds["property_code"],
	}
}

type agodaItem struct {
	ItemID    string `json:"itemId"`
	RoomCode  string `json:"roomCode"`
	Plan      string `json:"plan,omitempty"`
	Occupancy int    `json:"occupancy,omitempty"`
	StayDate  string `json:"stayDate"`
	Price     string `json:"price,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Allotment int    `json:"allotment,omitempty"`
	StopSell  bool   `json:"stopSell,omitempty"`
}

type agodaResponse struct {
	Ack    string `json:"ack"`
	Errors []struct {
		ItemID  string `json:"itemId"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *agoda) TestConnection(ctx context.Context) (domain.ConnectionStatus, error) {
	err := a.rc.get(ctx, "/ycs/properties/"+a.propertyCode, nil)
	return connStatus(err)
}

func (a *agoda) SyncRates(ctx context.Context, propertyID int64, items []domain.RatePayload) (domain.SyncResult, error) {
	wire := make([]agodaItem, 0, len(items))
	for _, it := range items {
		wire = append(wire, agodaItem{
			ItemID:    it.Key(),
			RoomCode:  it.RoomCategory,
			Plan:      string(it.Plan),
			Occupancy: occupancyGuests(it.Occupancy),
			StayDate:  it.Date.Format(time.DateOnly),
			Price:     minorToDecimal(it.PriceMinor),
			Currency:  it.Currency,
		})
	}
	return a.push(ctx, "/ycs/rates", "rates", wire)
}

func (a *agoda) SyncInventory(ctx context.Context, propertyID int64, items []domain.InventoryPayload) (domain.SyncResult, error) {
	wire := make([]agodaItem, 0, len(items))
	for _, it := range items {
		wire = append(wire, agodaItem{
			ItemID:    it.Key(),
			RoomCode:  it.RoomCategory,
			StayDate:  it.Date.Format(time.DateOnly),
			Allotment: it.Available,
		})
	}
	return a.push(ctx, "/ycs/allotments", "inventory", wire)
}

func (a *agoda) SyncAvailability(ctx context.Context, propertyID int64, items []domain.AvailabilityPayload) (domain.SyncResult, error) {
	wire := make([]agodaItem, 0, len(items))
	for _, it := range items {
		wire = append(wire, agodaItem{
			ItemID:   it.Key(),
			RoomCode: it.RoomCategory,
			StayDate: it.Date.Format(time.DateOnly),
			StopSell: !it.Open,
		})
	}
	return a.push(ctx, "/ycs/availability", "availability", wire)
}

func (a *agoda) push(ctx context.Context, path, kind string, wire []agodaItem) (domain.SyncResult, error) {
	start := time.Now()
	body := struct {
		PropertyCode string      `json:"propertyCode"`
		Items        []agodaItem `json:"items"`
	}{PropertyCode: a.propertyCode, Items: wire}

	var resp agodaResponse
	if err := a.rc.post(ctx, path, body, &resp); err != nil {
		return failedResult(len(wire), start), fmt.Errorf("agoda %s push: %w", kind, err)
	}
	var failures []domain.ItemFailure
	for _, e := range resp.Errors {
		failures = append(failures, domain.ItemFailure{Item: e.ItemID, Reason: e.Message})
	}
	return buildResult(len(wire), failures, start), nil
}
