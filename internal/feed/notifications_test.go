package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"polymarket-feed/internal/gateway"
	"polymarket-feed/internal/stream"
	"polymarket-feed/pkg/types"
)

const testAddress = "0x56687bf447db6ffa42ffe2204a05edaa20f55839"

// notifServer is a fake feed API that serves a canned notification page and
// records user-action requests.
type notifServer struct {
	mu      sync.Mutex
	list    types.NotificationList
	actions []string // "PATCH /notifications/<id>" etc.
	srv     *httptest.Server
}

func newNotifServer(t *testing.T, list types.NotificationList) *notifServer {
	t.Helper()
	ns := &notifServer{list: list}
	mux := http.NewServeMux()
	mux.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			ns.mu.Lock()
			defer ns.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(ns.list)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/notifications/", func(w http.ResponseWriter, r *http.Request) {
		ns.mu.Lock()
		ns.actions = append(ns.actions, r.Method+" "+r.URL.Path)
		ns.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
		ns.mu.Lock()
		ns.actions = append(ns.actions, r.Method+" "+r.URL.Path)
		ns.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	ns.srv = httptest.NewServer(mux)
	t.Cleanup(ns.srv.Close)
	return ns
}

func (ns *notifServer) recorded() []string {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return append([]string(nil), ns.actions...)
}

func notif(id string, read bool, offset time.Duration) types.Notification {
	return types.Notification{
		ID:        id,
		Type:      "fill",
		Title:     "Order filled",
		Message:   "message " + id,
		RelatedID: "market-" + id,
		Read:      read,
		CreatedAt: base.Add(offset),
	}
}

func newNotifFeed(t *testing.T, baseURL string, emit func(Event)) *NotificationsFeed {
	t.Helper()
	gw := gateway.NewClient(baseURL, slog.Default())
	return NewNotificationsFeed(NotificationsConfig{
		Address:       testAddress,
		Cap:           50,
		SnapshotLimit: 50,
		DedupWindow:   4 * time.Second,
		SeedRetention: time.Hour,
	}, gw, emit, slog.Default())
}

func notifMsg(t *testing.T, ev types.NotificationEvent) stream.Message {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return stream.Message{
		Type:    types.EventNotification,
		Channel: types.UserChannel(testAddress),
		Data:    data,
		At:      base.Add(10 * time.Minute),
	}
}

func TestRefreshSeedsListAndUnreadCount(t *testing.T) {
	t.Parallel()
	ns := newNotifServer(t, types.NotificationList{
		Notifications: []types.Notification{
			notif("n1", false, 3*time.Minute),
			notif("n2", true, 2*time.Minute),
			{ID: "", Type: "fill"}, // malformed, must be dropped
		},
		UnreadCount: 4, // 1 visible + 3 on later pages
		Total:       20,
	})
	f := newNotifFeed(t, ns.srv.URL, nil)

	if err := f.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := f.Notifications()
	if len(got) != 2 || got[0].ID != "n1" || got[1].ID != "n2" {
		t.Fatalf("rendered = %+v", got)
	}
	if f.Unread() != 4 {
		t.Fatalf("Unread() = %d, want 4", f.Unread())
	}
}

func TestStreamedNotificationMerges(t *testing.T) {
	t.Parallel()
	ns := newNotifServer(t, types.NotificationList{
		Notifications: []types.Notification{notif("n1", false, time.Minute)},
		UnreadCount:   1,
	})
	var emitted []Event
	f := newNotifFeed(t, ns.srv.URL, func(ev Event) { emitted = append(emitted, ev) })
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.handleMessage(notifMsg(t, types.NotificationEvent{
		ID:        "n2",
		Type:      "resolution",
		Title:     "Market resolved",
		Message:   "Yes won",
		RelatedID: "market-x",
		Timestamp: base.Add(5 * time.Minute).UnixMilli(),
	}))

	got := f.Notifications()
	if len(got) != 2 || got[0].ID != "n2" {
		t.Fatalf("rendered = %+v", got)
	}
	if f.Unread() != 2 {
		t.Fatalf("Unread() = %d, want 2", f.Unread())
	}
	if len(emitted) != 1 || emitted[0].Kind != EventNotification {
		t.Fatalf("emitted = %+v", emitted)
	}
}

func TestStreamedDuplicateOfSnapshotSuppressed(t *testing.T) {
	t.Parallel()
	seeded := notif("n1", false, time.Minute)
	ns := newNotifServer(t, types.NotificationList{
		Notifications: []types.Notification{seeded},
		UnreadCount:   1,
	})
	var emitted []Event
	f := newNotifFeed(t, ns.srv.URL, func(ev Event) { emitted = append(emitted, ev) })
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Same logical event replayed on the stream under a fresh record id.
	f.handleMessage(notifMsg(t, types.NotificationEvent{
		ID:        "stream-77",
		Type:      seeded.Type,
		Title:     seeded.Title,
		Message:   seeded.Message,
		RelatedID: seeded.RelatedID,
	}))

	if n := len(f.Notifications()); n != 1 {
		t.Fatalf("rendered %d items, want 1", n)
	}
	if len(emitted) != 0 {
		t.Fatalf("emitted = %+v, want none", emitted)
	}
}

func TestMalformedStreamPayloadsDropped(t *testing.T) {
	t.Parallel()
	ns := newNotifServer(t, types.NotificationList{})
	f := newNotifFeed(t, ns.srv.URL, nil)

	f.handleMessage(stream.Message{
		Type:    types.EventNotification,
		Channel: types.UserChannel(testAddress),
		Data:    []byte(`{not json`),
		At:      base,
	})
	f.handleMessage(notifMsg(t, types.NotificationEvent{ID: "x", Type: ""})) // no type
	f.handleMessage(stream.Message{Type: types.EventPong, At: base})         // wrong kind

	if n := len(f.Notifications()); n != 0 {
		t.Fatalf("rendered %d items, want 0", n)
	}
}

func TestMissingStreamIDGetsLocalID(t *testing.T) {
	t.Parallel()
	ns := newNotifServer(t, types.NotificationList{})
	f := newNotifFeed(t, ns.srv.URL, nil)

	f.handleMessage(notifMsg(t, types.NotificationEvent{
		Type:    "claim",
		Title:   "Winnings available",
		Message: "Claim now",
	}))

	got := f.Notifications()
	if len(got) != 1 {
		t.Fatalf("rendered %d items, want 1", len(got))
	}
	if !strings.HasPrefix(got[0].ID, "local-") {
		t.Fatalf("id = %q, want local- prefix", got[0].ID)
	}
}

func TestUserActions(t *testing.T) {
	t.Parallel()
	ns := newNotifServer(t, types.NotificationList{
		Notifications: []types.Notification{
			notif("n1", false, 3*time.Minute),
			notif("n2", false, 2*time.Minute),
		},
		UnreadCount: 5, // 3 unread beyond the page
	})
	f := newNotifFeed(t, ns.srv.URL, nil)
	ctx := context.Background()
	if err := f.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	if err := f.MarkRead(ctx, "n1"); err != nil {
		t.Fatal(err)
	}
	if f.Unread() != 4 {
		t.Fatalf("Unread() after mark-read = %d, want 4", f.Unread())
	}
	if err := f.MarkRead(ctx, "missing"); err == nil {
		t.Fatal("MarkRead accepted an unknown id")
	}

	if err := f.MarkAllRead(ctx); err != nil {
		t.Fatal(err)
	}
	if f.Unread() != 0 {
		t.Fatalf("Unread() after mark-all-read = %d, want 0", f.Unread())
	}

	if err := f.Delete(ctx, "n2"); err != nil {
		t.Fatal(err)
	}
	got := f.Notifications()
	if len(got) != 1 || got[0].ID != "n1" {
		t.Fatalf("rendered = %+v", got)
	}

	want := []string{
		"PATCH /notifications/n1",
		"POST /notifications/read-all",
		"DELETE /notifications/n2",
	}
	rec := ns.recorded()
	if len(rec) != len(want) {
		t.Fatalf("actions = %v, want %v", rec, want)
	}
	for i := range want {
		if rec[i] != want[i] {
			t.Fatalf("actions = %v, want %v", rec, want)
		}
	}
}
