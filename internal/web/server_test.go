package web

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	apppkg "github.com/guidoenr/spectrefx/internal/app"
	"github.com/guidoenr/spectrefx/internal/params"
	"github.com/guidoenr/spectrefx/internal/surface"
)

type fakeApp struct {
	store *params.Store
	surf  *surface.Surface
}

func (f *fakeApp) Store() *params.Store       { return f.store }
func (f *fakeApp) Surface() *surface.Surface { return f.surf }
func (f *fakeApp) Status() apppkg.Status {
	return apppkg.Status{FPS: 50, Display: f.store.SnapshotDisplay()}
}

func newTestServer(t *testing.T) (*fakeApp, *httptest.Server) {
	t.Helper()
	app := &fakeApp{
		store: params.NewStore(params.Limits{MaxBorder: 32, SampleRate: 48_000}),
		surf:  surface.New(640, 480),
	}
	s := NewServer(app, Config{StatusInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return app, srv
}

func decodeParams(t *testing.T, resp *http.Response) map[params.ID]params.Parameter {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var list []params.Parameter
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := make(map[params.ID]params.Parameter, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out
}

func TestGetParams(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/params")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got := decodeParams(t, resp)
	if len(got) != len(params.All) {
		t.Fatalf("params=%d want=%d", len(got), len(params.All))
	}
	if lp := got[params.LowPassFilter]; lp.Value != 24_000 || lp.Max != 24_000 {
		t.Fatalf("lowPass=%+v", lp)
	}
}

func TestPostParamsClampsAndRejectsUnknown(t *testing.T) {
	app, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/params", "application/json", strings.NewReader(`{"volume":2,"curve":0.5}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	got := decodeParams(t, resp)
	if got[params.Volume].Value != 1 || got[params.Curve].Value != 0.5 {
		t.Fatalf("volume=%f curve=%f", got[params.Volume].Value, got[params.Curve].Value)
	}

	resp, err = http.Post(srv.URL+"/api/params", "application/json", strings.NewReader(`{"curve":0.1,"warp":1}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if v, _ := app.store.Get(params.Curve); v != 0.5 {
		t.Fatalf("rejected batch partially applied, curve=%f", v)
	}
}

func TestResetEndpoint(t *testing.T) {
	app, srv := newTestServer(t)
	app.store.Set(params.Volume, 0.2)
	app.store.Set(params.Curve, 0.8)

	resp, err := http.Post(srv.URL+"/api/params/reset?id=volume", "", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	got := decodeParams(t, resp)
	if got[params.Volume].Value != 1 || got[params.Curve].Value != 0.8 {
		t.Fatalf("single reset wrong: %+v", got)
	}

	resp, err = http.Post(srv.URL+"/api/params/reset", "", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if got := decodeParams(t, resp); got[params.Curve].Value != 0 {
		t.Fatalf("reset all wrong: %+v", got[params.Curve])
	}
}

func TestFrameEndpoint(t *testing.T) {
	app, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/frame.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status before first frame=%d", resp.StatusCode)
	}

	app.surf.Present(image.NewRGBA(image.Rect(0, 0, 320, 256)))
	resp, err = http.Get(srv.URL + "/api/frame.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 256 {
		t.Fatalf("bounds=%v", img.Bounds())
	}
}

func TestFrameEndpointViewport(t *testing.T) {
	app, srv := newTestServer(t)
	frame := image.NewRGBA(image.Rect(0, 0, 320, 256))
	for i := range frame.Pix {
		frame.Pix[i] = 0xff
	}
	app.surf.Present(frame)

	resp, err := http.Get(srv.URL + "/api/frame.png?view=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 480 {
		t.Fatalf("bounds=%v", img.Bounds())
	}
	p := app.surf.Placement()
	if r, _, _, _ := img.At(p.Rect.Min.X+1, p.Rect.Min.Y+1).RGBA(); r != 0xffff {
		t.Fatalf("frame not composed into viewport at %v", p.Rect)
	}
	if p.Rect.Min.X > 0 {
		if r, _, _, _ := img.At(0, 0).RGBA(); r != 0 {
			t.Fatalf("letterbox not black")
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var st apppkg.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.FPS != 50 || st.Display.Contrast != 1 {
		t.Fatalf("status=%+v", st)
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(Message) bool) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func isChange(id params.ID) func(Message) bool {
	return func(m Message) bool { return m.Type == "change" && m.ID == id }
}

func TestWebSocketTwoWayBinding(t *testing.T) {
	app, srv := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readUntil(t, conn, func(m Message) bool { return m.Type == "params" })
		if len(msg.Params) != len(params.All) {
			t.Fatalf("initial table has %d entries", len(msg.Params))
		}
	}

	// a write from the store side reaches every view
	app.store.Set(params.Volume, 0.3)
	for _, conn := range []*websocket.Conn{a, b} {
		msg := readUntil(t, conn, isChange(params.Volume))
		if msg.Value == nil || *msg.Value != 0.3 {
			t.Fatalf("volume change=%+v", msg)
		}
	}

	// a write from one view updates the store and the other view
	if err := a.WriteJSON(map[string]any{"id": "curve", "value": 0.7}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, b, isChange(params.Curve))
	if *msg.Value != 0.7 {
		t.Fatalf("curve change=%+v", msg)
	}
	if v, _ := app.store.Get(params.Curve); v != 0.7 {
		t.Fatalf("store curve=%f", v)
	}

	// a change to zero still carries its value
	app.store.Set(params.Curve, 0)
	msg = readUntil(t, b, isChange(params.Curve))
	if msg.Value == nil || *msg.Value != 0 {
		t.Fatalf("zero change=%+v", msg)
	}
}

func TestWebSocketReportsBadWrites(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv)
	readUntil(t, conn, func(m Message) bool { return m.Type == "params" })

	if err := conn.WriteJSON(map[string]any{"id": "warp", "value": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, conn, func(m Message) bool { return m.Type == "error" })
	if !strings.Contains(msg.Error, "warp") {
		t.Fatalf("error=%q", msg.Error)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"volume"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readUntil(t, conn, func(m Message) bool { return m.Type == "error" })
	if msg.Error != "missing value" {
		t.Fatalf("error=%q", msg.Error)
	}
}

func TestIndexServed(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}
