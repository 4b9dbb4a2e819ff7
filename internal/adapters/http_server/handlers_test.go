package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	server "staysync/internal/adapters/http_server"
	"staysync/internal/app"
	"staysync/internal/domain"
)

// store is an in-memory stand-in for the mysql repo, covering every port the
// handlers reach through the services.
type store struct {
	rates    []domain.RateEntry
	nextID   int64
	channels map[domain.ChannelName]domain.ChannelConfig
	logs     map[string]domain.SyncLog
}

func newStore() *store {
	return &store{
		channels: map[domain.ChannelName]domain.ChannelConfig{},
		logs:     map[string]domain.SyncLog{},
	}
}

func (s *store) SaveRateEntry(ctx context.Context, e domain.RateEntry) (int64, error) {
	if e.ID == 0 {
		s.nextID++
		e.ID = s.nextID
		s.rates = append(s.rates, e)
		return e.ID, nil
	}
	for i := range s.rates {
		if s.rates[i].ID == e.ID {
			s.rates[i] = e
			return e.ID, nil
		}
	}
	return 0, domain.ErrNotFound
}

func (s *store) DeactivateRateEntry(ctx context.Context, propertyID, rateID int64) (domain.RateEntry, error) {
	for i := range s.rates {
		if s.rates[i].ID == rateID && s.rates[i].PropertyID == propertyID {
			s.rates[i].IsActive = false
			return s.rates[i], nil
		}
	}
	return domain.RateEntry{}, domain.ErrNotFound
}

func (s *store) ActiveEntries(ctx context.Context, key domain.RateKey, date time.Time) ([]domain.RateEntry, error) {
	var out []domain.RateEntry
	for _, e := range s.rates {
		if e.IsActive && e.Key() == key && e.Covers(date) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *store) RoomCategories(ctx context.Context, propertyID int64) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, e := range s.rates {
		if e.PropertyID == propertyID && e.IsActive && !seen[e.RoomCategory] {
			seen[e.RoomCategory] = true
			out = append(out, e.RoomCategory)
		}
	}
	return out, nil
}

func (s *store) GetChannel(ctx context.Context, propertyID int64, name domain.ChannelName) (domain.ChannelConfig, error) {
	cfg, ok := s.channels[name]
	if !ok {
		return domain.ChannelConfig{}, domain.ErrNotFound
	}
	return cfg, nil
}

func (s *store) ListChannels(ctx context.Context, propertyID int64) ([]domain.ChannelConfig, error) {
	var out []domain.ChannelConfig
	for _, cfg := range s.channels {
		out = append(out, cfg)
	}
	return out, nil
}

func (s *store) ListEnabledPairs(ctx context.Context) ([]domain.ChannelConfig, error) {
	var out []domain.ChannelConfig
	for _, cfg := range s.channels {
		if cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (s *store) SetSyncStatus(ctx context.Context, propertyID int64, name domain.ChannelName, st domain.SyncStatus) error {
	cfg := s.channels[name]
	cfg.SyncStatus = st
	s.channels[name] = cfg
	return nil
}

func (s *store) SetConnectionStatus(ctx context.Context, propertyID int64, name domain.ChannelName, st domain.ConnectionStatus) error {
	cfg := s.channels[name]
	cfg.ConnectionStatus = st
	s.channels[name] = cfg
	return nil
}

func (s *store) FinishSync(ctx context.Context, propertyID int64, name domain.ChannelName, st domain.SyncStatus, at time.Time, resetErrors, incrementErrors bool) error {
	cfg := s.channels[name]
	cfg.SyncStatus = st
	cfg.LastSyncAt = &at
	if resetErrors {
		cfg.SyncErrorCount = 0
	} else if incrementErrors {
		cfg.SyncErrorCount++
	}
	s.channels[name] = cfg
	return nil
}

func (s *store) Create(ctx context.Context, l domain.SyncLog) error {
	for _, cur := range s.logs {
		if cur.PropertyID == l.PropertyID && cur.Channel == l.Channel && cur.Status == domain.RunRunning {
			return domain.ErrSyncInProgress
		}
	}
	s.logs[l.SyncID] = l
	return nil
}

func (s *store) Get(ctx context.Context, syncID string) (domain.SyncLog, error) {
	l, ok := s.logs[syncID]
	if !ok {
		return domain.SyncLog{}, domain.ErrNotFound
	}
	return l, nil
}

func (s *store) Finalize(ctx context.Context, l domain.SyncLog) error {
	cur, ok := s.logs[l.SyncID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != domain.RunRunning {
		return domain.ErrRunFinalized
	}
	s.logs[l.SyncID] = l
	return nil
}

func (s *store) Cancel(ctx context.Context, syncID string, at time.Time) error {
	cur, ok := s.logs[syncID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != domain.RunRunning {
		return domain.ErrRunFinalized
	}
	cur.Status = domain.RunCancelled
	cur.EndTime = &at
	s.logs[syncID] = cur
	return nil
}

func (s *store) List(ctx context.Context, q domain.SyncLogQuery) (domain.SyncLogPage, error) {
	var out []domain.SyncLog
	for _, l := range s.logs {
		if l.PropertyID != q.PropertyID {
			continue
		}
		if q.Status != nil && l.Status != *q.Status {
			continue
		}
		out = append(out, l)
	}
	return domain.SyncLogPage{Items: out}, nil
}

func (s *store) StuckRuns(ctx context.Context, cutoff time.Time) ([]domain.SyncLog, error) {
	return nil, nil
}

func (s *store) Availability(ctx context.Context, propertyID int64, roomCategory string, from, to time.Time) ([]domain.InventoryPayload, error) {
	return []domain.InventoryPayload{{RoomCategory: roomCategory, Date: domain.Day(from), TotalRooms: 10, Available: 5}}, nil
}

type nullCache struct{}

func (nullCache) Get(ctx context.Context, key string, dst any) (bool, error) { return false, nil }

func (nullCache) Set(ctx context.Context, key string, v any, ttlSec int) error { return nil }

func (nullCache) Del(ctx context.Context, key string) error { return nil }

type okAdapter struct{}

func (okAdapter) TestConnection(ctx context.Context) (domain.ConnectionStatus, error) {
	return domain.ConnConnected, nil
}
func (okAdapter) SyncRates(ctx context.Context, propertyID int64, items []domain.RatePayload) (domain.SyncResult, error) {
	return domain.SyncResult{Success: true, Processed: len(items), Succeeded: len(items)}, nil
}
func (okAdapter) SyncInventory(ctx context.Context, propertyID int64, items []domain.InventoryPayload) (domain.SyncResult, error) {
	return domain.SyncResult{Success: true, Processed: len(items), Succeeded: len(items)}, nil
}
func (okAdapter) SyncAvailability(ctx context.Context, propertyID int64, items []domain.AvailabilityPayload) (domain.SyncResult, error) {
	return domain.SyncResult{Success: true, Processed: len(items), Succeeded: len(items)}, nil
}

type okFactory struct{}

func (okFactory) Create(name domain.ChannelName, creds domain.Credentials) (domain.ChannelAdapter, error) {
	return okAdapter{}, nil
}

func newTestServer(t *testing.T, st *store) *httptest.Server {
	t.Helper()
	rates := app.NewRateService(st, nullCache{}, time.Minute, 7)
	syncer := app.NewSyncService(st, st, rates, st, okFactory{}, 7, time.Second, "INR", 2)

	srv := server.New()
	srv.MountHandlers(&server.Handlers{Rates: rates, Sync: syncer, Logs: st, Channels: st})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func seedBase(st *store) {
	st.rates = append(st.rates, domain.RateEntry{
		ID: 1, PropertyID: 1, RoomCategory: "deluxe", Plan: domain.PlanEP,
		Occupancy: domain.OccDouble, Tier: domain.TierBase, PriceMinor: 300000,
		IsActive: true, UpdatedAt: time.Now(),
	})
	st.nextID = 1
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestResolveRatesEndpoint(t *testing.T) {
	st := newStore()
	seedBase(st)
	ts := newTestServer(t, st)

	var out struct {
		Nights []struct {
			Date       string `json:"date"`
			PriceMinor int64  `json:"price_minor"`
			Tier       string `json:"tier"`
			Found      bool   `json:"found"`
		} `json:"nights"`
	}
	code := getJSON(t, ts.URL+"/v1/properties/1/rates?room=deluxe&plan=EP&occupancy=double&from=2025-12-24&to=2025-12-26", &out)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(out.Nights) != 3 {
		t.Fatalf("expected 3 nights, got %d", len(out.Nights))
	}
	for _, n := range out.Nights {
		if !n.Found || n.PriceMinor != 300000 || n.Tier != "BASE" {
			t.Fatalf("unexpected night: %+v", n)
		}
	}

	// unknown plan is a 400, not a 500
	if code := getJSON(t, ts.URL+"/v1/properties/1/rates?room=deluxe&plan=XX&occupancy=double&from=2025-12-24", nil); code != http.StatusBadRequest {
		t.Fatalf("bad plan: status %d", code)
	}

	// an unpriced combination still answers 200 with found=false nights
	var miss struct {
		Nights []struct {
			Found bool `json:"found"`
		} `json:"nights"`
	}
	code = getJSON(t, ts.URL+"/v1/properties/1/rates?room=suite&plan=EP&occupancy=double&from=2025-12-24", &miss)
	if code != http.StatusOK || len(miss.Nights) != 1 || miss.Nights[0].Found {
		t.Fatalf("missing rate: code=%d nights=%+v", code, miss.Nights)
	}
}

func TestSaveAndDeactivateRateEndpoints(t *testing.T) {
	st := newStore()
	ts := newTestServer(t, st)

	resp := postJSON(t, ts.URL+"/v1/properties/1/rates",
		`{"room_category":"deluxe","plan":"EP","occupancy":"double","tier":"DIRECT",
		  "price_minor":450000,"start_date":"2025-12-24","end_date":"2025-12-26"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save: status %d", resp.StatusCode)
	}
	var created map[string]int64
	_ = json.NewDecoder(resp.Body).Decode(&created)
	if created["id"] == 0 {
		t.Fatalf("no id returned")
	}

	// validation failures map to 400 problem+json
	bad := postJSON(t, ts.URL+"/v1/properties/1/rates",
		`{"room_category":"deluxe","plan":"EP","occupancy":"double","tier":"BASE","price_minor":0}`)
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid entry: status %d", bad.StatusCode)
	}
	if ct := bad.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/problem+json") {
		t.Fatalf("content type: %s", ct)
	}

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/properties/1/rates/%d", ts.URL, created["id"]), nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", del.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/v1/properties/1/rates/999", nil)
	del, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusNotFound {
		t.Fatalf("delete unknown: status %d", del.StatusCode)
	}
}

func TestListChannelsRedactsCredentials(t *testing.T) {
	st := newStore()
	st.channels[domain.ChannelBookingCom] = domain.ChannelConfig{
		PropertyID: 1, Channel: domain.ChannelBookingCom, Enabled: true,
		Credentials: domain.Credentials{"api_key": "super-secret-key", "hotel_id": "h"},
		SyncStatus:  domain.SyncActive, ConnectionStatus: domain.ConnConnected,
	}
	ts := newTestServer(t, st)

	resp, err := http.Get(ts.URL + "/v1/properties/1/channels")
	if err != nil {
		t.Fatalf("get channels: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if strings.Contains(buf.String(), "super-secret-key") {
		t.Fatalf("credentials leaked into channel listing")
	}
	if !strings.Contains(buf.String(), "booking.com") {
		t.Fatalf("channel missing from listing: %s", buf.String())
	}
}

func TestTriggerSyncEndpoint(t *testing.T) {
	st := newStore()
	seedBase(st)
	st.channels[domain.ChannelBookingCom] = domain.ChannelConfig{
		PropertyID: 1, Channel: domain.ChannelBookingCom, Enabled: true,
		Credentials: domain.Credentials{"api_key": "k", "hotel_id": "h"},
	}
	st.channels[domain.ChannelAgoda] = domain.ChannelConfig{
		PropertyID: 1, Channel: domain.ChannelAgoda, Enabled: false,
		Credentials: domain.Credentials{"api_key": "k", "property_code": "p"},
	}
	ts := newTestServer(t, st)

	// single channel
	resp := postJSON(t, ts.URL+"/v1/properties/1/sync", `{"channel":"booking.com","type":"rates"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync: status %d", resp.StatusCode)
	}
	var out struct {
		Runs []struct {
			SyncID string `json:"sync_id"`
			Status string `json:"status"`
		} `json:"runs"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if len(out.Runs) != 1 || out.Runs[0].Status != "completed" || out.Runs[0].SyncID == "" {
		t.Fatalf("unexpected runs: %+v", out.Runs)
	}

	// disabled channel is a conflict
	conflict := postJSON(t, ts.URL+"/v1/properties/1/sync", `{"channel":"agoda","type":"rates"}`)
	defer conflict.Body.Close()
	if conflict.StatusCode != http.StatusConflict {
		t.Fatalf("disabled channel: status %d", conflict.StatusCode)
	}

	// "all" returns one summary per configured channel, failures inline
	all := postJSON(t, ts.URL+"/v1/properties/1/sync", `{"channel":"all","type":"rates"}`)
	defer all.Body.Close()
	if all.StatusCode != http.StatusOK {
		t.Fatalf("sync all: status %d", all.StatusCode)
	}
	var allOut struct {
		Runs []struct {
			Channel string `json:"channel"`
			Error   string `json:"error"`
		} `json:"runs"`
	}
	_ = json.NewDecoder(all.Body).Decode(&allOut)
	if len(allOut.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %+v", allOut.Runs)
	}

	// unknown type and unknown channel are 400s
	badType := postJSON(t, ts.URL+"/v1/properties/1/sync", `{"channel":"booking.com","type":"everything"}`)
	defer badType.Body.Close()
	if badType.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type: status %d", badType.StatusCode)
	}
}

func TestCancelSyncEndpoint(t *testing.T) {
	st := newStore()
	end := time.Now().UTC()
	st.logs["done-run"] = domain.SyncLog{
		SyncID: "done-run", PropertyID: 1, Channel: domain.ChannelBookingCom,
		Type: domain.SyncRates, Status: domain.RunCompleted, EndTime: &end,
	}
	ts := newTestServer(t, st)

	// cancelling a finished run conflicts; an unknown one is not found
	resp := postJSON(t, ts.URL+"/v1/properties/1/sync/done-run/cancel", ``)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("finished run: status %d", resp.StatusCode)
	}
	resp = postJSON(t, ts.URL+"/v1/properties/1/sync/nope/cancel", ``)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown run: status %d", resp.StatusCode)
	}
}

func TestListSyncLogsEndpoint(t *testing.T) {
	st := newStore()
	st.logs["a"] = domain.SyncLog{SyncID: "a", PropertyID: 1, Channel: domain.ChannelBookingCom,
		Type: domain.SyncRates, Status: domain.RunCompleted, StartTime: time.Now().UTC()}
	st.logs["b"] = domain.SyncLog{SyncID: "b", PropertyID: 1, Channel: domain.ChannelAgoda,
		Type: domain.SyncFull, Status: domain.RunFailed, StartTime: time.Now().UTC()}
	ts := newTestServer(t, st)

	var out struct {
		Items []struct {
			SyncID string `json:"sync_id"`
			Status string `json:"status"`
		} `json:"items"`
	}
	code := getJSON(t, ts.URL+"/v1/properties/1/sync-logs?status=failed", &out)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(out.Items) != 1 || out.Items[0].SyncID != "b" {
		t.Fatalf("filtered items: %+v", out.Items)
	}

	if code := getJSON(t, ts.URL+"/v1/properties/1/sync-logs?status=bogus", nil); code != http.StatusBadRequest {
		t.Fatalf("bogus status filter: %d", code)
	}
	if code := getJSON(t, ts.URL+"/v1/properties/1/sync-logs?limit=0", nil); code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", code)
	}
}
