package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"ChainFL/internal/artifact"
)

// newServer serves canned coordinator answers and captures the last submission.
func newServer(t *testing.T, submitStatus int, submitBody string, got *map[string]any) *Client {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /current-round", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"round":3,"globalModelHash":"ab","globalModelUri":"/m/ab.json","state":"collecting"}`))
	})

	mux.HandleFunc("POST /submit-update", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(got)
		w.WriteHeader(submitStatus)
		w.Write([]byte(submitBody))
	})

	mux.HandleFunc("POST /close-round", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"round 3 is not collecting (aggregating)"}`))
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return New(strings.TrimPrefix(ts.URL, "http://"))
}

// =============================================================================
// Front door
// =============================================================================

func TestCurrentRound(t *testing.T) {
	c := newServer(t, http.StatusOK, `{}`, nil)

	info, err := c.CurrentRound(context.Background())
	if err != nil {
		t.Fatalf("CurrentRound: %v", err)
	}

	if info.Round != 3 || info.GlobalModelURI != "/m/ab.json" || info.State != "collecting" {
		t.Errorf("info = %+v", info)
	}
}

func TestSubmitUpdateAccepted(t *testing.T) {
	var got map[string]any
	c := newServer(t, http.StatusOK, `{"success":true,"round":3,"txHash":"0x1","totalUpdatesThisRound":1}`, &got)

	res, err := c.SubmitUpdate(context.Background(), "clinic", Update{Path: "/u.json", Hash: "cd", Size: 8}, 3)
	if err != nil {
		t.Fatalf("SubmitUpdate: %v", err)
	}

	if !res.Success || res.TxHash != "0x1" || res.TotalUpdates != 1 {
		t.Errorf("result = %+v", res)
	}

	if got["clientId"] != "clinic" || got["weightsPath"] != "/u.json" || got["weightsSize"] != float64(8) || got["round"] != float64(3) {
		t.Errorf("request body = %v", got)
	}
}

func TestSubmitUpdateRejectedIsNotAnError(t *testing.T) {
	var got map[string]any
	c := newServer(t, http.StatusBadRequest, `{"success":false,"round":3,"reason":"duplicate client"}`, &got)

	res, err := c.SubmitUpdate(context.Background(), "clinic", Update{Path: "/u.json", Hash: "cd", Size: 8}, 0)
	if err != nil {
		t.Fatalf("SubmitUpdate: %v", err)
	}

	if res.Success || res.Reason != "duplicate client" {
		t.Errorf("result = %+v", res)
	}

	if _, ok := got["round"]; ok {
		t.Error("round sent although 0 was requested")
	}
}

func TestErrorStatusCarriesMessage(t *testing.T) {
	c := newServer(t, http.StatusOK, `{}`, nil)

	_, err := c.CloseRound(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not collecting") {
		t.Fatalf("CloseRound err = %v", err)
	}
}

func TestAdminTokenSentOnCloseRound(t *testing.T) {
	var auth string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"round":6,"closing":true}`))
	}))
	t.Cleanup(ts.Close)

	c := New(ts.URL)

	round, err := c.WithAdminToken("s3cret").CloseRound(context.Background())
	if err != nil || round != 6 {
		t.Fatalf("CloseRound = %d, %v", round, err)
	}

	if auth != "Bearer s3cret" {
		t.Errorf("Authorization = %q", auth)
	}

	c.CloseRound(context.Background())
	if auth != "" {
		t.Errorf("plain client sent Authorization %q", auth)
	}
}

// =============================================================================
// Update documents
// =============================================================================

func TestPrepareAndLoadUpdate(t *testing.T) {
	dir := t.TempDir()
	weights := []float64{0.5, -1.25, 3}

	u, err := PrepareUpdate(dir, "round-3", weights, 42)
	if err != nil {
		t.Fatalf("PrepareUpdate: %v", err)
	}

	data, err := os.ReadFile(u.Path)
	if err != nil {
		t.Fatalf("read update: %v", err)
	}

	if u.Hash != artifact.HashBytes(data) || u.Size != 42 {
		t.Errorf("update = %+v", u)
	}

	got, err := LoadWeights(u.Path, u.Hash)
	if err != nil {
		t.Fatalf("LoadWeights: %v", err)
	}

	for i := range weights {
		if got[i] != weights[i] {
			t.Fatalf("weights = %v, want %v", got, weights)
		}
	}
}

func TestLoadWeightsHashMismatch(t *testing.T) {
	u, err := PrepareUpdate(t.TempDir(), "w", []float64{1}, 1)
	if err != nil {
		t.Fatalf("PrepareUpdate: %v", err)
	}

	_, err = LoadWeights(u.Path, artifact.HashBytes([]byte("other")))
	if !errors.Is(err, artifact.ErrHashMismatch) {
		t.Errorf("err = %v, want ErrHashMismatch", err)
	}
}
