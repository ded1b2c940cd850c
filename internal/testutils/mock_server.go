package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

// TimeseriesFunc builds the "response" payload for a timeseries query
type TimeseriesFunc func(query url.Values) interface{}

// MockCurrencyBeacon is an httptest server speaking the CurrencyBeacon wire format
type MockCurrencyBeacon struct {
	server *httptest.Server

	mu              sync.Mutex
	timeseries      TimeseriesFunc
	convertValue    interface{}
	convertAmount   interface{}
	currencies      []map[string]string
	rawBodies       map[string]string
	statusOverrides map[string]int
	gate            func(endpoint string, query url.Values)
	queries         map[string][]url.Values

	requestCount atomic.Int64
}

// NewMockCurrencyBeacon creates a mock server with a small default dataset
// covering 2024-05-01 to 2024-05-03 for EUR, JPY and GBP
func NewMockCurrencyBeacon() *MockCurrencyBeacon {
	mock := &MockCurrencyBeacon{
		rawBodies:       make(map[string]string),
		statusOverrides: make(map[string]int),
		queries:         make(map[string][]url.Values),
	}
	mock.SetupDefaultResponses()
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handler))
	return mock
}

// SetupDefaultResponses restores the default dataset
func (m *MockCurrencyBeacon) SetupDefaultResponses() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timeseries = func(query url.Values) interface{} {
		rates := map[string]map[string]float64{
			"2024-05-01": {"EUR": 0.92, "JPY": 151.3, "GBP": 0.79},
			"2024-05-02": {"EUR": 0.93, "JPY": 151.1, "GBP": 0.8},
			"2024-05-03": {"EUR": 0.915, "JPY": 152.0, "GBP": 0.805},
		}
		symbols := strings.Split(query.Get("symbols"), ",")
		start, end := query.Get("start_date"), query.Get("end_date")
		response := make(map[string]map[string]float64, len(rates))
		for date, byCurrency := range rates {
			// ISO dates compare correctly as strings
			if (start != "" && date < start) || (end != "" && date > end) {
				continue
			}
			response[date] = make(map[string]float64)
			for _, symbol := range symbols {
				if rate, ok := byCurrency[symbol]; ok {
					response[date][symbol] = rate
				}
			}
		}
		return response
	}
	m.convertValue = 92.14
	m.convertAmount = 100
	m.currencies = []map[string]string{
		{"name": "US Dollar", "short_code": "USD"},
		{"name": "Euro", "short_code": "EUR"},
		{"name": "Japanese Yen", "short_code": "JPY"},
	}
	m.rawBodies = make(map[string]string)
	m.statusOverrides = make(map[string]int)
	m.gate = nil
}

// URL returns the base URL to configure the provider with
func (m *MockCurrencyBeacon) URL() string {
	return m.server.URL + "/v1"
}

// Close shuts the server down
func (m *MockCurrencyBeacon) Close() {
	m.server.Close()
}

// SetTimeseries replaces the timeseries payload builder
func (m *MockCurrencyBeacon) SetTimeseries(fn TimeseriesFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeseries = fn
}

// SetConvert sets the value and amount echoed by /convert
func (m *MockCurrencyBeacon) SetConvert(value, amount interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convertValue = value
	m.convertAmount = amount
}

// SetRawBody makes an endpoint answer 200 with body verbatim
func (m *MockCurrencyBeacon) SetRawBody(endpoint, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawBodies[endpoint] = body
}

// SetStatus makes an endpoint answer with status and an error body
func (m *MockCurrencyBeacon) SetStatus(endpoint string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusOverrides[endpoint] = status
}

// SetGate installs a hook run before each answer; tests use it to block or reorder responses
func (m *MockCurrencyBeacon) SetGate(gate func(endpoint string, query url.Values)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
}

// RequestCount returns the number of requests served
func (m *MockCurrencyBeacon) RequestCount() int {
	return int(m.requestCount.Load())
}

// Queries returns the recorded queries for an endpoint
func (m *MockCurrencyBeacon) Queries(endpoint string) []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]url.Values(nil), m.queries[endpoint]...)
}

// handler handles HTTP requests to the mock server
func (m *MockCurrencyBeacon) handler(w http.ResponseWriter, r *http.Request) {
	m.requestCount.Add(1)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	endpoint := strings.TrimPrefix(r.URL.Path, "/v1/")
	query := r.URL.Query()

	m.mu.Lock()
	m.queries[endpoint] = append(m.queries[endpoint], query)
	gate := m.gate
	status, hasStatus := m.statusOverrides[endpoint]
	raw, hasRaw := m.rawBodies[endpoint]
	timeseries := m.timeseries
	convertValue, convertAmount := m.convertValue, m.convertAmount
	currencies := m.currencies
	m.mu.Unlock()

	if gate != nil {
		gate(endpoint, query)
	}

	if query.Get("api_key") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"meta": map[string]interface{}{"code": 401, "error_detail": "missing api_key"}})
		return
	}
	if hasStatus {
		writeJSON(w, status, map[string]interface{}{"meta": map[string]interface{}{"code": status}})
		return
	}
	if hasRaw {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(raw))
		return
	}

	switch endpoint {
	case "timeseries":
		writeJSON(w, http.StatusOK, map[string]interface{}{"response": timeseries(query)})
	case "convert":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"response": map[string]interface{}{
				"from":   query.Get("from"),
				"to":     query.Get("to"),
				"value":  convertValue,
				"amount": convertAmount,
			},
		})
	case "currencies":
		writeJSON(w, http.StatusOK, map[string]interface{}{"response": currencies})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
