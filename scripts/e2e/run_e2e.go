// Package main runs end-to-end scenarios against a live calendar API.
//
// Scenarios cover:
//   - Appointment CRUD round trip
//   - Confirmation call that ends in a confirmed appointment
//   - Confirmation call that ends in a cancellation
//   - Reschedule request during a call
//   - Hanging up mid-call leaves the appointment untouched
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go            # runs all
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go confirm    # runs one
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var baseURL = strings.TrimRight(envOr("API_BASE_URL", "http://localhost:8080"), "/")

type scenario struct {
	name string
	run  func() error
}

func main() {
	scenarios := []scenario{
		{"crud", runCRUD},
		{"confirm", func() error { return runCallScenario("yes, I'll be there", "confirmed") }},
		{"cancel", func() error { return runCallScenario("sorry, I have to cancel", "cancelled") }},
		{"reschedule", func() error { return runCallScenario("can we pick a different time?", "rescheduled") }},
		{"hangup", runHangUp},
	}

	only := ""
	if len(os.Args) > 1 {
		only = os.Args[1]
	}

	failed := 0
	for _, sc := range scenarios {
		if only != "" && sc.name != only {
			continue
		}
		fmt.Printf("=== %s\n", sc.name)
		if err := sc.run(); err != nil {
			failed++
			fmt.Printf("--- FAIL: %s: %v\n", sc.name, err)
			continue
		}
		fmt.Printf("--- PASS: %s\n", sc.name)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

type appointment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type callState struct {
	ID    string `json:"id"`
	Phase string `json:"phase"`
	Turns []struct {
		Role string `json:"role"`
		Text string `json:"text"`
	} `json:"turns"`
	Appointment appointment `json:"appointment"`
}

func runCRUD() error {
	appt, err := createAppointment()
	if err != nil {
		return err
	}
	defer deleteAppointment(appt.ID)

	var updated appointment
	if err := doJSON(http.MethodPatch, "/appointments/"+appt.ID,
		map[string]string{"status": "confirmed"}, &updated); err != nil {
		return err
	}
	if updated.Status != "confirmed" {
		return fmt.Errorf("expected confirmed, got %q", updated.Status)
	}
	return nil
}

func runCallScenario(utterance, wantStatus string) error {
	appt, err := createAppointment()
	if err != nil {
		return err
	}
	defer deleteAppointment(appt.ID)

	var st callState
	if err := doJSON(http.MethodPost, "/appointments/"+appt.ID+"/call", nil, &st); err != nil {
		return err
	}

	if err := waitForGreeting(st.ID); err != nil {
		return err
	}
	if err := doJSON(http.MethodPost, "/calls/"+st.ID+"/message",
		map[string]string{"text": utterance}, nil); err != nil {
		return err
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		var cur callState
		if err := doJSON(http.MethodGet, "/calls/"+st.ID, nil, &cur); err != nil {
			// The session dismisses itself shortly after ending.
			break
		}
		if cur.Phase == "ended" {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	var final appointment
	if err := doJSON(http.MethodGet, "/appointments/"+appt.ID, nil, &final); err != nil {
		return err
	}
	if final.Status != wantStatus {
		return fmt.Errorf("expected status %q, got %q", wantStatus, final.Status)
	}
	return nil
}

func runHangUp() error {
	appt, err := createAppointment()
	if err != nil {
		return err
	}
	defer deleteAppointment(appt.ID)

	var st callState
	if err := doJSON(http.MethodPost, "/appointments/"+appt.ID+"/call", nil, &st); err != nil {
		return err
	}
	if err := waitForGreeting(st.ID); err != nil {
		return err
	}
	if err := doJSON(http.MethodPost, "/calls/"+st.ID+"/hangup", nil, nil); err != nil {
		return err
	}

	var final appointment
	if err := doJSON(http.MethodGet, "/appointments/"+appt.ID, nil, &final); err != nil {
		return err
	}
	if final.Status != "pending" {
		return fmt.Errorf("expected pending after hangup, got %q", final.Status)
	}
	return nil
}

func createAppointment() (appointment, error) {
	var appt appointment
	err := doJSON(http.MethodPost, "/appointments/", map[string]string{
		"patient_name":     "E2E Patient",
		"phone_number":     "+1 (555) 010-0199",
		"appointment_time": time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339),
	}, &appt)
	return appt, err
}

func deleteAppointment(id string) {
	_ = doJSON(http.MethodDelete, "/appointments/"+id, nil, nil)
}

func waitForGreeting(callID string) error {
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		var st callState
		if err := doJSON(http.MethodGet, "/calls/"+callID, nil, &st); err != nil {
			return err
		}
		if st.Phase == "connected" && len(st.Turns) > 0 {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("call %s never greeted", callID)
}

func doJSON(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
