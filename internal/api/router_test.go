package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/waifeed/internal/api/middleware"
	"github.com/timmy/waifeed/internal/config"
	"github.com/timmy/waifeed/internal/domain"
	"github.com/timmy/waifeed/internal/logger"
	"github.com/timmy/waifeed/internal/provider"
	"github.com/timmy/waifeed/internal/provider/waifuim"
	"github.com/timmy/waifeed/internal/provider/waifupics"
	"github.com/timmy/waifeed/internal/repository"
	"github.com/timmy/waifeed/internal/service"
	"github.com/timmy/waifeed/internal/surface"
)

// fakeProviders serves both provider APIs. Every image URL is unique.
// When gate is set every response waits until it is closed.
func fakeProviders(t *testing.T, gate <-chan struct{}) *httptest.Server {
	t.Helper()
	var n atomic.Int64
	next := func(r *http.Request) string {
		if gate != nil {
			<-gate
		}
		return fmt.Sprintf("https://img.test%s/%d.png", r.URL.Path, n.Add(1))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/pics/many/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		files := []string{next(r), next(r), next(r)}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": files})
	})
	mux.HandleFunc("/pics/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"url": next(r)})
	})
	mux.HandleFunc("/im/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]string{{"url": next(r)}, {"url": next(r)}},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testApp struct {
	router *gin.Engine
	feed   *service.FeedService
	store  *service.SettingsStore
	hub    *surface.Hub
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWithGate(t, nil)
}

func newTestAppWithGate(t *testing.T, gate <-chan struct{}) *testApp {
	t.Helper()
	providers := fakeProviders(t, gate)

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "waifeed.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("init db: %v", err)
	}

	defaults := config.DefaultsConfig{
		Provider:     "waifu.pics",
		AutoRefresh:  true,
		RefreshDelay: 10,
		Categories: config.CategoriesConfig{
			WaifuPics: config.RatedCategories{SFW: []string{"smile"}, NSFW: []string{"neko"}},
			WaifuIm:   config.RatedCategories{SFW: []string{"maid"}, NSFW: []string{"ero"}},
		},
	}
	seed, err := defaults.Settings()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}

	ctx := context.Background()
	store, err := service.NewSettingsStore(ctx, repository.NewSettingsRepository(db), seed)
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}

	pics, err := waifupics.NewAdapter(providers.URL + "/pics")
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	im, err := waifuim.NewAdapter(providers.URL+"/im", 2)
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}

	hub := surface.NewHub(8)
	feed := service.NewFeedService(
		store,
		provider.NewRegistry(pics, im),
		provider.NewFetcher(&provider.FetcherConfig{Timeout: 2 * time.Second}),
		nil,
		hub,
	)
	stop := feed.Watch(ctx)
	t.Cleanup(stop)
	t.Cleanup(hub.Close)

	router, err := SetupRouter(feed, store, hub, &config.ServerConfig{Mode: "test"}, logger.NewDefault())
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return &testApp{router: router, feed: feed, store: store, hub: hub}
}

func (a *testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

type messageResponse struct {
	Command   string           `json:"command"`
	Delivered bool             `json:"delivered"`
	Image     *domain.Image    `json:"image"`
	Settings  *domain.Settings `json:"settings"`
	Error     string           `json:"error"`
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response: %d %s", w.Code, w.Body.String())
	}
}

func TestSurfaceMessages(t *testing.T) {
	tests := []struct {
		name          string
		body          any
		wantStatus    int
		wantDelivered bool
		wantPrefix    string
	}{
		{name: "ready", body: map[string]any{"command": "ready"}, wantStatus: http.StatusOK, wantDelivered: true, wantPrefix: "https://img.test/pics/many/sfw/smile/"},
		{name: "next image", body: map[string]any{"command": "getNextImage"}, wantStatus: http.StatusOK, wantDelivered: true, wantPrefix: "https://img.test/pics/many/sfw/smile/"},
		{name: "request new image", body: map[string]any{"command": "requestNewImage"}, wantStatus: http.StatusOK, wantDelivered: true, wantPrefix: "https://img.test/pics/many/sfw/smile/"},
		{name: "new category", body: map[string]any{"command": "requestNewCategory"}, wantStatus: http.StatusOK, wantDelivered: true, wantPrefix: "https://img.test/pics/many/sfw/smile/"},
		{name: "unknown command", body: map[string]any{"command": "dance"}, wantStatus: http.StatusBadRequest},
		{name: "missing command", body: map[string]any{"allowNsfw": true}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			w := app.do(t, http.MethodPost, "/api/v1/surface/messages", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			resp := decode[messageResponse](t, w)
			if resp.Delivered != tt.wantDelivered {
				t.Fatalf("delivered = %v, want %v (%s)", resp.Delivered, tt.wantDelivered, resp.Error)
			}
			if resp.Image == nil || !strings.HasPrefix(resp.Image.URL, tt.wantPrefix) {
				t.Errorf("unexpected image %+v", resp.Image)
			}
		})
	}
}

func TestSurfaceMessages_UpdateSettings(t *testing.T) {
	app := newTestApp(t)
	if w := app.do(t, http.MethodPost, "/api/v1/surface/messages", map[string]any{"command": "ready"}); w.Code != http.StatusOK {
		t.Fatalf("ready: %d", w.Code)
	}

	w := app.do(t, http.MethodPost, "/api/v1/surface/messages", map[string]any{
		"command":      "updateSettings",
		"allowNsfw":    false,
		"autoRefresh":  false,
		"refreshDelay": 20,
		"provider":     "waifu.im",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	resp := decode[messageResponse](t, w)
	if resp.Settings == nil || resp.Settings.Provider != domain.ProviderWaifuIm || resp.Settings.RefreshDelay != 20 {
		t.Errorf("unexpected settings %+v", resp.Settings)
	}

	st := app.feed.Status()
	if st.Provider != domain.ProviderWaifuIm || st.Category != "maid" {
		t.Errorf("feed did not follow the settings change: %+v", st)
	}
	if st.Current == nil || !strings.HasPrefix(st.Current.URL, "https://img.test/im/search/") {
		t.Errorf("expected a waifu.im image, got %+v", st.Current)
	}
	if st.RefreshDelay != -1 {
		t.Errorf("expected -1 with auto refresh off, got %d", st.RefreshDelay)
	}

	w = app.do(t, http.MethodPost, "/api/v1/surface/messages", map[string]any{
		"command":  "updateSettings",
		"provider": "example.org",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown provider, got %d", w.Code)
	}
	if body := decode[map[string]string](t, w); body["request_id"] == "" || body["request_id"] != w.Header().Get("X-Request-ID") {
		t.Errorf("expected the request id in the error body, got %v", body)
	}
}

func TestSurfaceMessages_GetSettings(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodPost, "/api/v1/surface/messages", map[string]any{"command": "getSettings"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[messageResponse](t, w)
	if resp.Settings == nil || resp.Settings.Provider != domain.ProviderWaifuPics || !resp.Settings.AutoRefresh {
		t.Errorf("unexpected settings %+v", resp.Settings)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPut, "/api/v1/settings", map[string]any{
		"allowNsfw": true,
		"categories": map[string][]string{
			"categories.waifu.pics.nsfw": {"waifu"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d (%s)", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodGet, "/api/v1/settings", nil)
	snap := decode[domain.Settings](t, w)
	if !snap.AllowNSFW || len(snap.CategoriesNSFW[domain.ProviderWaifuPics]) != 1 {
		t.Errorf("unexpected settings %+v", snap)
	}

	w = app.do(t, http.MethodPut, "/api/v1/settings", map[string]any{"refreshDelay": -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a negative delay, got %d", w.Code)
	}

	w = app.do(t, http.MethodDelete, "/api/v1/settings/allowNSFW", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d (%s)", w.Code, w.Body.String())
	}
	if snap := decode[domain.Settings](t, w); snap.AllowNSFW {
		t.Errorf("expected allowNSFW back at its default")
	}

	w = app.do(t, http.MethodDelete, "/api/v1/settings", nil)
	snap = decode[domain.Settings](t, w)
	if len(snap.CategoriesNSFW[domain.ProviderWaifuPics]) != 1 || snap.CategoriesNSFW[domain.ProviderWaifuPics][0] != "neko" {
		t.Errorf("expected default nsfw categories after a full reset, got %v", snap.CategoriesNSFW)
	}
}

func TestFeedStatusAndPage(t *testing.T) {
	app := newTestApp(t)
	app.do(t, http.MethodPost, "/api/v1/surface/messages", map[string]any{"command": "getNextImage"})

	w := app.do(t, http.MethodGet, "/api/v1/feed", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"state":"ready"`) {
		t.Errorf("unexpected feed status: %s", w.Body.String())
	}

	w = app.do(t, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("page status = %d", w.Code)
	}
	cur := app.feed.Status().Current
	if cur == nil || !strings.Contains(w.Body.String(), cur.URL) {
		t.Errorf("page does not show the current image")
	}
}

func TestOpenSettingsAndStats(t *testing.T) {
	app := newTestApp(t)
	ch, err := app.hub.Subscribe("s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	w := app.do(t, http.MethodPost, "/api/v1/surface/open-settings", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if msg := <-ch; msg.Command != domain.CommandOpenSettings {
		t.Errorf("expected openSettings, got %+v", msg)
	}

	w = app.do(t, http.MethodGet, "/api/v1/surfaces/s1/stats", nil)
	stats := decode[surface.Stats](t, w)
	if stats.Sent != 1 {
		t.Errorf("expected 1 sent, got %+v", stats)
	}
	if w := app.do(t, http.MethodGet, "/api/v1/surfaces/nope/stats", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestSurfaceEvents(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/surface/events?surface_id=panel", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)

	hello := readEvent(t, r)
	if hello.name != "hello" || !strings.Contains(hello.data, `"panel"`) {
		t.Fatalf("unexpected first event %+v", hello)
	}

	body := strings.NewReader(`{"command":"ready"}`)
	post, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/surface/messages", body)
	post.Header.Set("Content-Type", "application/json")
	post.Header.Set(middleware.SurfaceIDHeader, "panel")
	postResp, err := http.DefaultClient.Do(post)
	if err != nil {
		t.Fatalf("post ready: %v", err)
	}
	postResp.Body.Close()

	ev := readEvent(t, r)
	if ev.name != "message" {
		t.Fatalf("unexpected event %+v", ev)
	}
	var msg domain.OutboundMessage
	if err := json.Unmarshal([]byte(ev.data), &msg); err != nil {
		t.Fatalf("decode %q: %v", ev.data, err)
	}
	if msg.Command != domain.CommandUpdateImage || msg.ImageURL == "" || msg.RefreshDelay == nil || *msg.RefreshDelay != 10 {
		t.Errorf("unexpected push %+v", msg)
	}
	if st := app.feed.Status(); st.State != service.FeedReady {
		t.Errorf("expected a ready feed, got %s", st.State)
	}

	// A second stream with the same id is rejected.
	dup, err := http.Get(srv.URL + "/api/v1/surface/events?surface_id=panel")
	if err != nil {
		t.Fatalf("duplicate stream: %v", err)
	}
	dup.Body.Close()
	if dup.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for a duplicate surface, got %d", dup.StatusCode)
	}
}

func TestSurfaceEvents_HelloPrecedesFirstFetch(t *testing.T) {
	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }

	app := newTestAppWithGate(t, gate)
	srv := httptest.NewServer(app.router)
	defer srv.Close()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/surface/events", nil)
	req.Header.Set(middleware.SurfaceIDHeader, "from-header")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	// The provider is held, so hello must arrive before any fetch completes.
	hello := readEvent(t, bufio.NewReader(resp.Body))
	if hello.name != "hello" || !strings.Contains(hello.data, `"from-header"`) {
		t.Fatalf("unexpected first event %+v", hello)
	}

	// Health reads the feed status while the first fetch is still held.
	w := app.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"uninitialized"`) {
		t.Errorf("unexpected health response during the first fetch: %d %s", w.Code, w.Body.String())
	}

	release()
}
