package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zvit_agent/internal/domain/push"
	"zvit_agent/internal/domain/storage"
	istorage "zvit_agent/internal/infra/storage"
)

var errNetwork = errors.New("dial tcp: network is unreachable")

func openStore(t *testing.T) *istorage.BoltStore {
	t.Helper()
	s, err := istorage.OpenBolt(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// events records the order of side effects across fakes.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type fakeWindow struct {
	id       string
	url      string
	messages []push.Message
	focused  int
	ev       *events
}

func (w *fakeWindow) ID() string  { return w.id }
func (w *fakeWindow) URL() string { return w.url }

func (w *fakeWindow) PostMessage(_ context.Context, msg push.Message) error {
	w.messages = append(w.messages, msg)
	w.ev.add("post:" + w.id + ":" + msg.Type)
	return nil
}

func (w *fakeWindow) Focus(context.Context) error {
	w.focused++
	w.ev.add("focus:" + w.id)
	return nil
}

type fakeClients struct {
	windows []push.Client
	opened  []string
	opts    []push.MatchOptions
	ev      *events
}

func (c *fakeClients) MatchAll(_ context.Context, opts push.MatchOptions) ([]push.Client, error) {
	c.opts = append(c.opts, opts)
	return c.windows, nil
}

func (c *fakeClients) OpenWindow(_ context.Context, u string) error {
	c.opened = append(c.opened, u)
	c.ev.add("open:" + u)
	return nil
}

type fakeDisplay struct {
	shown  map[string]push.Notification
	order  []push.Notification
	closed []string
	ev     *events
}

func newFakeDisplay(ev *events) *fakeDisplay {
	return &fakeDisplay{shown: map[string]push.Notification{}, ev: ev}
}

func (d *fakeDisplay) Show(_ context.Context, n push.Notification) error {
	d.shown[n.ID] = n
	d.order = append(d.order, n)
	d.ev.add("show:" + n.Tag)
	return nil
}

func (d *fakeDisplay) Close(_ context.Context, id string) error {
	delete(d.shown, id)
	d.closed = append(d.closed, id)
	d.ev.add("close:" + id)
	return nil
}

func (d *fakeDisplay) Get(id string) (push.Notification, bool) {
	n, ok := d.shown[id]
	return n, ok
}

type replayCall struct {
	Endpoint string
	Token    string
	Key      string
	Body     map[string]any
}

// fakeReplayer answers with status(call) or fails when it returns 0.
type fakeReplayer struct {
	calls  []replayCall
	status func(c replayCall) int
}

func (r *fakeReplayer) Replay(_ context.Context, endpoint, token, key string, body json.RawMessage) (int, error) {
	c := replayCall{Endpoint: endpoint, Token: token, Key: key}
	if err := json.Unmarshal(body, &c.Body); err != nil {
		return 0, err
	}
	r.calls = append(r.calls, c)
	code := http.StatusOK
	if r.status != nil {
		code = r.status(c)
	}
	if code == 0 {
		return 0, errNetwork
	}
	return code, nil
}

type fakeRegistrar struct {
	tags []string
	err  error
}

func (r *fakeRegistrar) Register(_ context.Context, tag string) error {
	r.tags = append(r.tags, tag)
	return r.err
}

// fakeUpstream serves canned responses by request key. Keys without a
// response fail as a transport error; offline fails everything.
type fakeUpstream struct {
	responses map[string]*storage.Entry
	offline   bool
	calls     []string
	ev        *events
}

func (u *fakeUpstream) Fetch(_ context.Context, target *url.URL, _ http.Header) (*storage.Entry, error) {
	key := storage.RequestKey(target)
	u.calls = append(u.calls, key)
	u.ev.add("network:" + key)
	if u.offline {
		return nil, errNetwork
	}
	e, ok := u.responses[key]
	if !ok {
		return nil, errNetwork
	}
	return e.Clone(), nil
}

func response(key string, status int, body string) *storage.Entry {
	return &storage.Entry{
		Key:      key,
		URL:      "https://zvit.test" + key,
		Status:   status,
		Header:   http.Header{"Content-Type": []string{"text/plain"}},
		Body:     []byte(body),
		StoredAt: time.Now(),
	}
}

// tracingStore records MatchAny lookups into events.
type tracingStore struct {
	storage.CacheStorage
	ev *events
}

func (s *tracingStore) MatchAny(ctx context.Context, key string) (*storage.Entry, error) {
	s.ev.add("cache:" + key)
	return s.CacheStorage.MatchAny(ctx, key)
}

type fakeClaimer struct{ claims int }

func (c *fakeClaimer) Claim(context.Context) error {
	c.claims++
	return nil
}

type recorded struct {
	mu      sync.Mutex
	counts  map[string]int
	pending int
}

func newRecorded() *recorded { return &recorded{counts: map[string]int{}} }

func (r *recorded) inc(k string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[k]++
}

func (r *recorded) CacheResult(strategy, source string) { r.inc("cache:" + strategy + ":" + source) }
func (r *recorded) SyncReplay(outcome string)           { r.inc("sync:" + outcome) }
func (r *recorded) PendingReports(n int)                { r.pending = n }
func (r *recorded) PushPresented(t string)              { r.inc("push:" + t) }
func (r *recorded) NotificationClick(a string)          { r.inc("click:" + a) }
func (r *recorded) ReportSubmitted(o string)            { r.inc("report:" + o) }

func (r *recorded) count(k string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[k]
}
