package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/auth"
	"github.com/pannenhilfe24/callcore/internal/config"
	"github.com/pannenhilfe24/callcore/internal/ledger"
	"github.com/pannenhilfe24/callcore/internal/monitor"
	"github.com/pannenhilfe24/callcore/internal/objectstore"
	"github.com/pannenhilfe24/callcore/internal/playback"
	"github.com/pannenhilfe24/callcore/internal/policy"
	"github.com/pannenhilfe24/callcore/internal/queue"
	"github.com/pannenhilfe24/callcore/internal/recorder"
	"github.com/pannenhilfe24/callcore/internal/storage"
	"github.com/pannenhilfe24/callcore/internal/types"
)

type testServer struct {
	router   *chi.Mux
	ledger   *ledger.Ledger
	queueMgr *queue.Manager
	tracker  *queue.AgentTracker
	store    *storage.MemoryStore
}

// newTestServer wires the HTTP surface the way the server binary does,
// with in-memory backends and dev-mode auth headers.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("SKIP_AUTH", "true")

	nop := zerolog.Nop()
	store := storage.NewMemoryStore()
	objects := objectstore.NewMemoryStore()

	callLedger := ledger.New(time.Minute, nop)
	tracker := queue.NewAgentTracker()
	queueMgr := queue.NewManager(callLedger, tracker, nop)
	engine := policy.NewEngine(nil, 250)

	pipeline := recorder.NewPipeline(store, objects, 1, 1, time.Millisecond, nop)
	t.Cleanup(pipeline.Close)
	cfg := &config.Config{CaptureDir: t.TempDir()}
	recorderSvc := recorder.NewService(cfg, callLedger, store, pipeline, nop)
	go recorderSvc.Run(callLedger.Feed().Subscribe(0))

	hub := monitor.NewHub(nop)
	go hub.Run()
	mon := monitor.NewMonitor(callLedger, hub, nop)

	gateway := playback.NewGateway(store, objects, time.Minute, nop)

	callHandler := NewCallHandler(callLedger, queueMgr, engine, mon, store, nop)
	mediaHandler := NewMediaHandler(recorderSvc, callLedger, nop)
	recordingHandler := NewRecordingHandler(gateway, nop)
	agentHandler := NewAgentHandler(tracker, queueMgr, nop)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/api/calls", func(r chi.Router) {
			r.Post("/", callHandler.CreateCall)
			r.Get("/{callID}", callHandler.GetCall)
			r.Post("/{callID}/answer", callHandler.Answer)
			r.Post("/{callID}/reject", callHandler.Reject)
			r.Post("/{callID}/hangup", callHandler.Hangup)
			r.Post("/{callID}/media", mediaHandler.Ingest)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Get("/calls/active", callHandler.ActiveCalls)
			r.Get("/calls/history", callHandler.History)
			r.Post("/calls/{callID}/force-end", callHandler.ForceEnd)

			r.Get("/recordings/{recordingID}", recordingHandler.GetRecording)
			r.Get("/recordings/{recordingID}/url", recordingHandler.GetPlaybackURL)
			r.Get("/recordings/{recordingID}/download", recordingHandler.Download)

			r.Post("/agents/status", agentHandler.SetStatus)
			r.Get("/agents", agentHandler.ListAgents)
			r.Get("/queue", agentHandler.QueueSnapshot)
		})
	})

	return &testServer{router: r, ledger: callLedger, queueMgr: queueMgr, tracker: tracker, store: store}
}

// do performs a request acting as the given party
func (s *testServer) do(t *testing.T, method, path string, partyType types.PartyType, partyID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Dev-Party-Type", string(partyType))
	req.Header.Set("X-Dev-Party-ID", partyID)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeCall(t *testing.T, rec *httptest.ResponseRecorder) types.Call {
	t.Helper()
	var call types.Call
	if err := json.NewDecoder(rec.Body).Decode(&call); err != nil {
		t.Fatalf("decoding call: %v", err)
	}
	return call
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/calls", types.PartyCustomer, "cust-1",
		map[string]interface{}{"receiverId": "part-1", "receiverType": "partner"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	call := decodeCall(t, rec)
	if call.Status != types.CallStatusRinging {
		t.Fatalf("expected ringing, got %s", call.Status)
	}

	rec = srv.do(t, http.MethodPost, "/api/calls/"+call.ID+"/answer", types.PartyPartner, "part-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("answer: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if got := decodeCall(t, rec); got.Status != types.CallStatusConnected {
		t.Fatalf("expected connected, got %s", got.Status)
	}

	rec = srv.do(t, http.MethodPost, "/api/calls/"+call.ID+"/hangup", types.PartyCustomer, "cust-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("hangup: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	ended := decodeCall(t, rec)
	if ended.Status != types.CallStatusEnded || ended.EndReason != types.EndReasonHangup {
		t.Errorf("expected ended/hangup, got %s/%s", ended.Status, ended.EndReason)
	}
}

func TestAnswerRestrictedToReceiver(t *testing.T) {
	srv := newTestServer(t)

	call := decodeCall(t, srv.do(t, http.MethodPost, "/api/calls", types.PartyCustomer, "cust-1",
		map[string]interface{}{"receiverId": "part-1", "receiverType": "partner"}))

	// Caller answering their own call is forbidden.
	rec := srv.do(t, http.MethodPost, "/api/calls/"+call.ID+"/answer", types.PartyCustomer, "cust-1", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/calls/"+call.ID+"/answer", types.PartyPartner, "someone-else", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for stranger, got %d", rec.Code)
	}
}

func TestRejectOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	call := decodeCall(t, srv.do(t, http.MethodPost, "/api/calls", types.PartyCustomer, "cust-1",
		map[string]interface{}{"receiverId": "part-1", "receiverType": "partner"}))

	rec := srv.do(t, http.MethodPost, "/api/calls/"+call.ID+"/reject", types.PartyPartner, "part-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	got := decodeCall(t, rec)
	if got.Status != types.CallStatusRejected || got.EndReason != types.EndReasonRejected {
		t.Errorf("expected rejected, got %s/%s", got.Status, got.EndReason)
	}
}

func TestBusyCallerConflict(t *testing.T) {
	srv := newTestServer(t)

	srv.do(t, http.MethodPost, "/api/calls", types.PartyCustomer, "cust-1",
		map[string]interface{}{"receiverId": "part-1", "receiverType": "partner"})

	rec := srv.do(t, http.MethodPost, "/api/calls", types.PartyCustomer, "cust-1",
		map[string]interface{}{"receiverId": "part-2", "receiverType": "partner"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for busy caller, got %d: %s", rec.Code, rec.Body)
	}
}

func TestRouteNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/calls", types.PartyPartner, "part-1",
		map[string]interface{}{"receiverId": "cust-1", "receiverType": "customer"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for partner->customer, got %d: %s", rec.Code, rec.Body)
	}
}

func TestDirectCallRequiresReceiverID(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/calls", types.PartyAdmin, "admin-1",
		map[string]interface{}{"receiverType": "customer"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without receiverId, got %d: %s", rec.Code, rec.Body)
	}
}

func TestSupportCallQueuesAndCancels(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/calls", types.PartyCustomer, "cust-1",
		map[string]interface{}{"receiverType": "admin"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	call := decodeCall(t, rec)

	if srv.queueMgr.Depth() != 1 {
		t.Fatalf("expected queued call, depth %d", srv.queueMgr.Depth())
	}

	snap := srv.do(t, http.MethodGet, "/api/admin/queue", types.PartyAdmin, "admin-1", nil)
	if snap.Code != http.StatusOK {
		t.Fatalf("queue snapshot: expected 200, got %d", snap.Code)
	}
	var snapshot types.QueueSnapshot
	if err := json.NewDecoder(snap.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if snapshot.CustomersWaiting != 1 {
		t.Errorf("expected 1 waiting customer, got %d", snapshot.CustomersWaiting)
	}

	// Hanging up while still queued cancels the queue entry.
	rec = srv.do(t, http.MethodPost, "/api/calls/"+call.ID+"/hangup", types.PartyCustomer, "cust-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("hangup: expected 200, got %d", rec.Code)
	}
	got := decodeCall(t, rec)
	if got.EndReason != types.EndReasonCallerCancelled {
		t.Errorf("expected caller_cancelled, got %s", got.EndReason)
	}
	if srv.queueMgr.Depth() != 0 {
		t.Errorf("expected empty queue after cancel, depth %d", srv.queueMgr.Depth())
	}
}

func TestAgentStatusDrivesAssignment(t *testing.T) {
	srv := newTestServer(t)

	call := decodeCall(t, srv.do(t, http.MethodPost, "/api/calls", types.PartyCustomer, "cust-1",
		map[string]interface{}{"receiverType": "admin"}))

	rec := srv.do(t, http.MethodPost, "/api/admin/agents/status", types.PartyAdmin, "agent-1",
		map[string]bool{"available": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("agent status: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	if n := srv.queueMgr.TryAssign(); n != 1 {
		t.Fatalf("expected 1 assignment, got %d", n)
	}
	assigned, _ := srv.ledger.GetCall(call.ID)
	if assigned.Receiver.ID != "agent-1" {
		t.Errorf("expected agent-1 assigned, got %q", assigned.Receiver.ID)
	}
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	srv := newTestServer(t)

	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/admin/calls/active"},
		{http.MethodGet, "/api/admin/calls/history"},
		{http.MethodGet, "/api/admin/queue"},
		{http.MethodGet, "/api/admin/recordings/rec-1"},
	}
	for _, p := range paths {
		rec := srv.do(t, p.method, p.path, types.PartyCustomer, "cust-1", nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s: expected 403 for customer, got %d", p.method, p.path, rec.Code)
		}
	}
}

func TestForceEndOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	call := decodeCall(t, srv.do(t, http.MethodPost, "/api/calls", types.PartyCustomer, "cust-1",
		map[string]interface{}{"receiverId": "part-1", "receiverType": "partner"}))

	rec := srv.do(t, http.MethodPost, "/api/admin/calls/"+call.ID+"/force-end", types.PartyAdmin, "admin-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	got := decodeCall(t, rec)
	if got.Status != types.CallStatusEnded || got.EndReason != types.EndReasonAdminForced {
		t.Errorf("expected ended/admin_forced, got %s/%s", got.Status, got.EndReason)
	}
}

func TestGetCallVisibility(t *testing.T) {
	srv := newTestServer(t)

	call := decodeCall(t, srv.do(t, http.MethodPost, "/api/calls", types.PartyCustomer, "cust-1",
		map[string]interface{}{"receiverId": "part-1", "receiverType": "partner"}))

	for _, tc := range []struct {
		partyType types.PartyType
		partyID   string
		code      int
	}{
		{types.PartyCustomer, "cust-1", http.StatusOK},
		{types.PartyPartner, "part-1", http.StatusOK},
		{types.PartyAdmin, "admin-1", http.StatusOK},
		{types.PartyCustomer, "cust-2", http.StatusForbidden},
	} {
		rec := srv.do(t, http.MethodGet, "/api/calls/"+call.ID, tc.partyType, tc.partyID, nil)
		if rec.Code != tc.code {
			t.Errorf("%s %s: expected %d, got %d", tc.partyType, tc.partyID, tc.code, rec.Code)
		}
	}

	rec := srv.do(t, http.MethodGet, "/api/calls/not-a-call", types.PartyAdmin, "admin-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown call, got %d", rec.Code)
	}
}

func TestMediaIngestValidation(t *testing.T) {
	srv := newTestServer(t)

	call := decodeCall(t, srv.do(t, http.MethodPost, "/api/calls", types.PartyCustomer, "cust-1",
		map[string]interface{}{"receiverId": "part-1", "receiverType": "partner"}))

	post := func(partyID string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/calls/"+call.ID+"/media", bytes.NewReader(body))
		req.Header.Set("X-Dev-Party-Type", "customer")
		req.Header.Set("X-Dev-Party-ID", partyID)
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)
		return rec
	}

	if rec := post("cust-2", []byte{0, 0}); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-participant, got %d", rec.Code)
	}
	if rec := post("cust-1", []byte{0, 0, 0}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for odd payload, got %d", rec.Code)
	}

	// Valid frame on an unrecorded call is accepted but not captured.
	rec := post("cust-1", []byte{0, 0, 0, 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var result map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result["captured"] {
		t.Error("unrecorded call must not capture media")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv := newTestServer(t)

	if err := srv.store.SaveCallRecord(types.CallRecord{
		DateKey: "2026-08-31", CallID: "call-1",
		CallerName: "Anna Schmidt", Status: "ended",
		StartedAt: "2026-08-31T10:00:00Z",
	}); err != nil {
		t.Fatalf("SaveCallRecord: %v", err)
	}

	rec := srv.do(t, http.MethodGet, "/api/admin/calls/history?status=ended", types.PartyAdmin, "admin-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var records []types.CallRecord
	if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
		t.Fatalf("decoding records: %v", err)
	}
	if len(records) != 1 || records[0].CallID != "call-1" {
		t.Errorf("unexpected records %+v", records)
	}

	if rec := srv.do(t, http.MethodGet, "/api/admin/calls/history?limit=x", types.PartyAdmin, "admin-1", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestRecordingEndpoints(t *testing.T) {
	srv := newTestServer(t)

	// No such recording yet.
	rec := srv.do(t, http.MethodGet, "/api/admin/recordings/rec-1", types.PartyAdmin, "admin-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	if err := srv.store.SaveRecording(types.Recording{
		ID: "rec-1", CallID: "call-1",
		FilePath: "recordings/2026/08/31/call_call-1.wav",
		Status:   types.RecordingStatusProcessing,
	}); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}

	rec = srv.do(t, http.MethodGet, "/api/admin/recordings/rec-1", types.PartyAdmin, "admin-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	// Not playable until the encode finishes.
	rec = srv.do(t, http.MethodGet, "/api/admin/recordings/rec-1/url", types.PartyAdmin, "admin-1", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for processing recording, got %d: %s", rec.Code, rec.Body)
	}
}
