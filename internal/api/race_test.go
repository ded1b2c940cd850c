package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
)

// TestConcurrentTableAndPlotReads hammers one session's outputs and checks
// they are all served from a single upstream fetch
func TestConcurrentTableAndPlotReads(t *testing.T) {
	suite := newTestSuite(t, nil)
	id := suite.createSession(t)
	server := httptest.NewServer(suite.router)
	defer server.Close()

	const numGoroutines = 50
	const requestsPerGoroutine = 4

	var waitGroup sync.WaitGroup
	errors := make(chan error, numGoroutines*requestsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		waitGroup.Add(1)
		go func(goroutineID int) {
			defer waitGroup.Done()
			for j := 0; j < requestsPerGoroutine; j++ {
				output := "table"
				if (goroutineID+j)%2 == 0 {
					output = "plot"
				}
				response, err := http.Get(server.URL + "/api/v1/sessions/" + id + "/historical/" + output)
				if err != nil {
					errors <- fmt.Errorf("goroutine %d request %d failed: %w", goroutineID, j, err)
					continue
				}
				response.Body.Close()
				if response.StatusCode != http.StatusOK {
					errors <- fmt.Errorf("goroutine %d request %d: status %d", goroutineID, j, response.StatusCode)
				}
			}
		}(i)
	}

	waitGroup.Wait()
	close(errors)

	for err := range errors {
		t.Error(err)
	}
	assert.Equal(t, 1, suite.mockServer.RequestCount())
}

// TestConcurrentSessions checks sessions never see each other's inputs
func TestConcurrentSessions(t *testing.T) {
	suite := newTestSuite(t, nil)

	targets := []string{"EUR", "JPY", "GBP"}
	var waitGroup sync.WaitGroup
	for i := 0; i < 30; i++ {
		waitGroup.Add(1)
		go func(index int) {
			defer waitGroup.Done()
			recorder := suite.do(http.MethodPost, "/api/v1/sessions", nil)
			if !assert.Equal(t, http.StatusCreated, recorder.Code) {
				return
			}
			id := decodeID(t, recorder)
			target := targets[index%len(targets)]

			suite.do(http.MethodPut, "/api/v1/sessions/"+id+"/historical/inputs", map[string]interface{}{
				"base":       "USD",
				"targets":    []string{target},
				"start_date": "2024-05-01",
				"end_date":   "2024-05-03",
			})
			table := suite.do(http.MethodGet, "/api/v1/sessions/"+id+"/historical/table", nil)
			assert.Equal(t, 3, countRows(t, table.Body.Bytes(), target))
		}(i)
	}
	waitGroup.Wait()

	require.Equal(t, 30, suite.sessions.Len())
}

// decodeID and countRows avoid require, which must not be called off the test goroutine
func decodeID(t *testing.T, recorder *httptest.ResponseRecorder) string {
	var state models.SessionState
	assert.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &state))
	return state.ID
}

func countRows(t *testing.T, body []byte, currency string) int {
	var table models.TableView
	assert.NoError(t, json.Unmarshal(body, &table))
	count := 0
	for _, row := range table.Rows {
		if row.Currency == currency {
			count++
		}
	}
	return count
}

func newBenchmarkSession(b *testing.B) (*testSuite, string) {
	suite := newTestSuite(b, nil)
	recorder := suite.do(http.MethodPost, "/api/v1/sessions", nil)
	var state models.SessionState
	if err := json.Unmarshal(recorder.Body.Bytes(), &state); err != nil {
		b.Fatalf("create session: %v", err)
	}
	return suite, state.ID
}

// BenchmarkMemoizedTable measures reads served from the memoized frame
func BenchmarkMemoizedTable(b *testing.B) {
	suite, id := newBenchmarkSession(b)
	path := "/api/v1/sessions/" + id + "/historical/table"
	suite.do(http.MethodGet, path, nil)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if recorder := suite.do(http.MethodGet, path, nil); recorder.Code != http.StatusOK {
				b.Errorf("unexpected status %d", recorder.Code)
			}
		}
	})
}

// BenchmarkRefreshedTable measures a full fetch and reshape on every read
func BenchmarkRefreshedTable(b *testing.B) {
	suite, id := newBenchmarkSession(b)
	path := "/api/v1/sessions/" + id + "/historical/table"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		suite.do(http.MethodPost, "/api/v1/sessions/"+id+"/historical/refresh", nil)
		if recorder := suite.do(http.MethodGet, path, nil); recorder.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", recorder.Code)
		}
	}
}

// BenchmarkHealthCheck benchmarks the health check endpoint
func BenchmarkHealthCheck(b *testing.B) {
	suite := newTestSuite(b, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		suite.do(http.MethodGet, "/health", nil)
	}
}
