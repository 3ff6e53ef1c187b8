// Benchmark tool for replaying labeled event data through Peregrine.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/events.csv -url http://localhost:8080
//
// This tool:
//  1. Reads labeled event data (EVENT_LABEL column marks fraud rows)
//  2. Sends each event to POST /predict
//  3. Compares the model score against a threshold with the actual label
//  4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledEvent is one row of the replay file.
type LabeledEvent struct {
	EntityID  string
	Timestamp string
	Variables map[string]string
	IsFraud   bool
}

// PredictRequest matches Peregrine's POST /predict body.
type PredictRequest struct {
	EntityID  string            `json:"entityId,omitempty"`
	Timestamp string            `json:"timestamp"`
	Variables map[string]string `json:"variables"`
}

// PredictResponse is the subset of the prediction we score against.
type PredictResponse struct {
	EventID string             `json:"eventId"`
	Scores  map[string]float64 `json:"scores"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled event CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Peregrine base URL")
	labelCol := flag.String("label", "EVENT_LABEL", "Label column name")
	tsCol := flag.String("timestamp", "EVENT_TIMESTAMP", "Timestamp column name")
	entityCol := flag.String("entity", "", "Entity ID column name (optional)")
	fraudValue := flag.String("fraud-value", "fraud", "Label value that marks a fraud row")
	scoreField := flag.String("score", "", "Score field to threshold (default: first score in response)")
	threshold := flag.Float64("threshold", 500, "Score at or above which an event counts as fraud")
	limit := flag.Int("limit", 10000, "Maximum events to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each event result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/events.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("PEREGRINE BENCHMARK - labeled event replay")
	fmt.Printf("\nCSV File:      %s\n", *csvPath)
	fmt.Printf("Peregrine URL: %s\n", *baseURL)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Printf("Limit:         %d\n", *limit)
	fmt.Printf("Threshold:     %.2f\n", *threshold)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Peregrine not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Peregrine is running:")
		fmt.Println("  go run cmd/peregrine/main.go")
		os.Exit(1)
	}
	fmt.Println("Peregrine is healthy")

	fmt.Printf("\nReading events from %s...\n", *csvPath)
	events, err := readEventCSV(*csvPath, *labelCol, *tsCol, *entityCol, *fraudValue, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d events\n", len(events))

	fraudCount := 0
	for _, ev := range events {
		if ev.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(events)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(events)-fraudCount, 100*float64(len(events)-fraudCount)/float64(len(events)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(events, *baseURL, *scoreField, *threshold, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readEventCSV(path, labelCol, tsCol, entityCol, fraudValue string, limit int) ([]LabeledEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[col] = i
	}
	labelIdx, ok := colIndex[labelCol]
	if !ok {
		return nil, fmt.Errorf("label column %q not in header", labelCol)
	}
	tsIdx, ok := colIndex[tsCol]
	if !ok {
		return nil, fmt.Errorf("timestamp column %q not in header", tsCol)
	}
	entityIdx := -1
	if entityCol != "" {
		if entityIdx, ok = colIndex[entityCol]; !ok {
			return nil, fmt.Errorf("entity column %q not in header", entityCol)
		}
	}

	var events []LabeledEvent
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		ev := LabeledEvent{
			Timestamp: record[tsIdx],
			Variables: make(map[string]string),
			IsFraud:   strings.EqualFold(record[labelIdx], fraudValue),
		}
		if entityIdx >= 0 {
			ev.EntityID = record[entityIdx]
		}
		for i, col := range header {
			if i == labelIdx || i == tsIdx || i == entityIdx {
				continue
			}
			ev.Variables[col] = record[i]
		}

		events = append(events, ev)

		if limit > 0 && len(events) >= limit {
			break
		}
	}

	return events, nil
}

func runBenchmark(events []LabeledEvent, baseURL, scoreField string, threshold float64, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledEvent, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for ev := range work {
				start := time.Now()
				score, err := predictEvent(client, baseURL, scoreField, ev)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", ev.EntityID, err)
					}
					continue
				}

				if ev.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				predicted := score >= threshold
				actual := ev.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else {
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					marker := "ok  "
					if predicted != actual {
						marker = "MISS"
					}
					fmt.Printf("%s entity=%-12s fraud=%-5v score=%8.2f\n", marker, ev.EntityID, ev.IsFraud, score)
				}
			}
		}()
	}

	for _, ev := range events {
		work <- ev
	}
	close(work)

	wg.Wait()

	return metrics
}

func predictEvent(client *http.Client, baseURL, scoreField string, ev LabeledEvent) (float64, error) {
	req := PredictRequest{
		EntityID:  ev.EntityID,
		Timestamp: ev.Timestamp,
		Variables: ev.Variables,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}

	if scoreField != "" {
		score, ok := result.Scores[scoreField]
		if !ok {
			return 0, fmt.Errorf("score field %q not in response", scoreField)
		}
		return score, nil
	}
	for _, score := range result.Scores {
		return score, nil
	}
	return 0, fmt.Errorf("no scores in response")
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                      Predicted")
	fmt.Println("                  FRAUD       LEGIT")
	fmt.Printf("   Actual   F   %8d    %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           NF   %8d    %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged events, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\nDETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		eps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f events/sec\n", eps)
	}

	fmt.Println()
}
