package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LoadTestConfig holds configuration for load testing
type LoadTestConfig struct {
	BaseURL         string
	ConcurrentUsers int
	RequestsPerUser int
	InputChangeRate int
	Timeout         time.Duration
	TestDuration    time.Duration
	RampUpDuration  time.Duration
	ThinkTime       time.Duration
}

// LoadTestResult holds the result of a single request
type LoadTestResult struct {
	UserID     int
	RequestID  int
	Operation  string
	StatusCode int
	Duration   time.Duration
	Success    bool
	Degraded   bool
	Error      error
	Timestamp  time.Time
}

// LoadTestSummary holds the summary of load test results
type LoadTestSummary struct {
	TotalRequests       int
	SuccessfulRequests  int
	FailedRequests      int
	DegradedResponses   int
	TotalDuration       time.Duration
	AverageResponseTime time.Duration
	MinResponseTime     time.Duration
	MaxResponseTime     time.Duration
	RequestsPerSecond   float64
	ErrorRate           float64
	ResponseTime95th    time.Duration
	ResponseTime99th    time.Duration
	ByOperation         map[string]int
}

const dateLayout = "2006-01-02"

// targetSets are cycled through to force new frame generations
var targetSets = [][]string{
	{"EUR"},
	{"EUR", "JPY"},
	{"GBP", "JPY", "EUR"},
}

func main() {
	var config LoadTestConfig

	flag.StringVar(&config.BaseURL, "url", "http://localhost:8081", "Dashboard base URL")
	flag.IntVar(&config.ConcurrentUsers, "users", 10, "Number of concurrent users, one session each")
	flag.IntVar(&config.RequestsPerUser, "requests", 100, "Number of table/plot reads per user")
	flag.IntVar(&config.InputChangeRate, "change-every", 10, "Change the historical inputs every N reads (0 = never)")
	flag.DurationVar(&config.Timeout, "timeout", 30*time.Second, "Request timeout")
	flag.DurationVar(&config.TestDuration, "duration", 0, "Test duration (0 = run until all requests complete)")
	flag.DurationVar(&config.RampUpDuration, "rampup", 5*time.Second, "Ramp-up duration")
	flag.DurationVar(&config.ThinkTime, "think", 100*time.Millisecond, "Think time between requests")
	flag.Parse()

	color.Cyan("Starting load test...")
	fmt.Printf("Dashboard: %s\n", config.BaseURL)
	fmt.Printf("Concurrent Users: %d\n", config.ConcurrentUsers)
	fmt.Printf("Reads per User: %d\n", config.RequestsPerUser)
	fmt.Printf("Input change every: %d reads\n", config.InputChangeRate)
	fmt.Printf("Timeout: %v\n", config.Timeout)
	fmt.Printf("Ramp-up Duration: %v\n", config.RampUpDuration)
	fmt.Printf("Think Time: %v\n", config.ThinkTime)
	fmt.Printf("Test Duration: %v\n", config.TestDuration)
	fmt.Println()

	summary := runLoadTest(config)
	printSummary(summary)
}

func runLoadTest(config LoadTestConfig) LoadTestSummary {
	// Each read is preceded at most by one input change
	results := make(chan LoadTestResult, config.ConcurrentUsers*(2*config.RequestsPerUser+2))

	client := &http.Client{Timeout: config.Timeout}
	startTime := time.Now()

	ctx := context.Background()
	if config.TestDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.TestDuration)
		defer cancel()
	}

	var wg sync.WaitGroup
	rampUpDelay := time.Duration(0)
	if config.ConcurrentUsers > 0 {
		rampUpDelay = config.RampUpDuration / time.Duration(config.ConcurrentUsers)
	}

	for userID := 0; userID < config.ConcurrentUsers; userID++ {
		wg.Add(1)
		go func(uid int) {
			defer wg.Done()
			time.Sleep(time.Duration(uid) * rampUpDelay)
			runUser(ctx, client, config, uid, results)
		}(userID)
	}

	wg.Wait()
	close(results)

	return processResults(results, time.Since(startTime))
}

func runUser(ctx context.Context, client *http.Client, config LoadTestConfig, uid int, results chan<- LoadTestResult) {
	created := makeRequest(ctx, client, http.MethodPost, config.BaseURL+"/api/v1/sessions", nil)
	created.UserID, created.Operation = uid, "create"
	results <- created.LoadTestResult
	if !created.Success {
		return
	}

	sessionURL := config.BaseURL + "/api/v1/sessions/" + created.sessionID
	defer makeRequest(context.Background(), client, http.MethodDelete, sessionURL, nil)

	for reqID := 0; reqID < config.RequestsPerUser; reqID++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if config.InputChangeRate > 0 && reqID%config.InputChangeRate == 0 {
			inputs := historicalInputs(uid, reqID/config.InputChangeRate, time.Now())
			changed := makeRequest(ctx, client, http.MethodPut, sessionURL+"/historical/inputs", inputs)
			changed.UserID, changed.RequestID, changed.Operation = uid, reqID, "inputs"
			results <- changed.LoadTestResult
		}

		output := "table"
		if reqID%2 == 1 {
			output = "plot"
		}
		read := makeRequest(ctx, client, http.MethodGet, sessionURL+"/historical/"+output, nil)
		read.UserID, read.RequestID, read.Operation = uid, reqID, output
		results <- read.LoadTestResult

		if config.ThinkTime > 0 {
			time.Sleep(config.ThinkTime)
		}
	}
}

// historicalInputs builds a full inputs update. The range is the 30 days
// ending yesterday (UTC) so it always sits inside the server's history bounds.
func historicalInputs(uid, change int, now time.Time) map[string]interface{} {
	end := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -29)
	return map[string]interface{}{
		"base":       "USD",
		"targets":    targetSets[(uid+change)%len(targetSets)],
		"start_date": start.Format(dateLayout),
		"end_date":   end.Format(dateLayout),
	}
}

type response struct {
	LoadTestResult
	sessionID string
}

func makeRequest(ctx context.Context, client *http.Client, method, url string, body interface{}) response {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}

	start := time.Now()
	result := response{LoadTestResult: LoadTestResult{Timestamp: start}}

	request, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		result.Error = err
		return result
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(request)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300

	var decoded struct {
		ID     string `json:"id"`
		Banner string `json:"banner"`
	}
	if json.NewDecoder(resp.Body).Decode(&decoded) == nil {
		result.sessionID = decoded.ID
		result.Degraded = decoded.Banner != ""
	}
	return result
}

func processResults(results <-chan LoadTestResult, totalDuration time.Duration) LoadTestSummary {
	summary := LoadTestSummary{
		TotalDuration: totalDuration,
		ByOperation:   make(map[string]int),
	}
	var responseTimes []time.Duration

	for result := range results {
		summary.TotalRequests++
		summary.ByOperation[result.Operation]++
		responseTimes = append(responseTimes, result.Duration)

		if result.Success {
			summary.SuccessfulRequests++
		} else {
			summary.FailedRequests++
		}
		if result.Degraded {
			summary.DegradedResponses++
		}
	}

	if summary.TotalRequests == 0 {
		return summary
	}

	summary.ErrorRate = float64(summary.FailedRequests) / float64(summary.TotalRequests) * 100
	summary.RequestsPerSecond = float64(summary.TotalRequests) / totalDuration.Seconds()

	sort.Slice(responseTimes, func(i, j int) bool { return responseTimes[i] < responseTimes[j] })

	var totalResponseTime time.Duration
	for _, rt := range responseTimes {
		totalResponseTime += rt
	}
	summary.MinResponseTime = responseTimes[0]
	summary.MaxResponseTime = responseTimes[len(responseTimes)-1]
	summary.AverageResponseTime = totalResponseTime / time.Duration(len(responseTimes))
	summary.ResponseTime95th = percentile(responseTimes, 95)
	summary.ResponseTime99th = percentile(responseTimes, 99)

	return summary
}

// percentile expects sorted input
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)) * float64(p) / 100.0)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func printSummary(summary LoadTestSummary) {
	color.Cyan("=== Load Test Results ===")
	if summary.TotalRequests == 0 {
		color.Red("No requests were made")
		return
	}
	fmt.Printf("Total Requests: %d\n", summary.TotalRequests)
	for _, operation := range []string{"create", "inputs", "table", "plot"} {
		fmt.Printf("  %-7s %d\n", operation+":", summary.ByOperation[operation])
	}
	fmt.Printf("Successful Requests: %d (%.2f%%)\n", summary.SuccessfulRequests,
		float64(summary.SuccessfulRequests)/float64(summary.TotalRequests)*100)
	fmt.Printf("Failed Requests: %d (%.2f%%)\n", summary.FailedRequests, summary.ErrorRate)
	fmt.Printf("Degraded Responses: %d\n", summary.DegradedResponses)
	fmt.Printf("Total Duration: %v\n", summary.TotalDuration)
	fmt.Printf("Requests per Second: %.2f\n", summary.RequestsPerSecond)
	fmt.Printf("Average Response Time: %v\n", summary.AverageResponseTime)
	fmt.Printf("Min Response Time: %v\n", summary.MinResponseTime)
	fmt.Printf("Max Response Time: %v\n", summary.MaxResponseTime)
	fmt.Printf("95th Percentile Response Time: %v\n", summary.ResponseTime95th)
	fmt.Printf("99th Percentile Response Time: %v\n", summary.ResponseTime99th)

	fmt.Println()
	color.Cyan("=== Performance Assessment ===")
	if summary.ErrorRate > 5.0 {
		color.Yellow("High error rate: %.2f%% (target: < 5%%)", summary.ErrorRate)
	} else {
		color.Green("Error rate: %.2f%% (good)", summary.ErrorRate)
	}

	if summary.DegradedResponses > 0 {
		color.Yellow("%d reads rendered a provider banner", summary.DegradedResponses)
	}

	if summary.AverageResponseTime > 2*time.Second {
		color.Yellow("High average response time: %v (target: < 2s)", summary.AverageResponseTime)
	} else {
		color.Green("Average response time: %v (good)", summary.AverageResponseTime)
	}

	if summary.RequestsPerSecond < 10 {
		color.Yellow("Low throughput: %.2f req/s (target: > 10 req/s)", summary.RequestsPerSecond)
	} else {
		color.Green("Throughput: %.2f req/s (good)", summary.RequestsPerSecond)
	}
}
