package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satrunner/internal/n2yo"
)

func TestSubject(t *testing.T) {
	now := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "N2YO Daily Satellite Report - 2024-03-10", Subject(now))
}

func TestCollectKeepsOrder(t *testing.T) {
	var inFlight, peak int32
	mk := func(title string, d time.Duration) Request {
		return Request{Title: title, Fetch: func(ctx context.Context) n2yo.Response {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(d)
			atomic.AddInt32(&inFlight, -1)
			return n2yo.Response{Data: json.RawMessage(`{"t":"` + title + `"}`)}
		}}
	}
	reqs := []Request{mk("a", 30*time.Millisecond), mk("b", 10*time.Millisecond), mk("c", 0), mk("d", 5*time.Millisecond)}

	got := Collect(context.Background(), reqs, 2)
	require.Len(t, got, 4)
	for i, s := range got {
		assert.Equal(t, reqs[i].Title, s.Title)
		assert.JSONEq(t, `{"t":"`+s.Title+`"}`, string(s.Response.Data))
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPlanAgainstServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "radiopasses") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"info":{"satname":"SPACE STATION"}}`))
	}))
	defer ts.Close()

	c := n2yo.New("k3y-value", n2yo.WithBaseURL(ts.URL), n2yo.WithLimiter(nil))
	sections := Collect(context.Background(), Plan(c, Defaults()), 3)
	require.Len(t, sections, 5)
	assert.Equal(t, "TLE Data (ISS)", sections[0].Title)
	assert.Equal(t, "What's Up", sections[4].Title)
	assert.Equal(t, 1, Failed(sections))
	assert.False(t, sections[3].Response.OK())
}

func TestRenderHTML(t *testing.T) {
	now := time.Date(2024, 3, 10, 7, 0, 5, 0, time.UTC)
	html, err := RenderHTML(now, []Section{
		{Title: "TLE Data (ISS)", Response: n2yo.Response{Data: json.RawMessage(`{"info":{"satid":25544}}`)}},
		{Title: "Radio Passes (ISS)", Response: n2yo.Response{
			Error:   "JSON decode error: invalid character '<'",
			URL:     "https://api.n2yo.com/rest/v1/satellite/radiopasses/1&apiKey=***",
			Content: "<b>bad</b>",
		}},
		{Title: "What's Up", Response: n2yo.Response{Data: json.RawMessage(`null`)}},
	})
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>N2YO API Daily Report - 2024-03-10 07:00:05 UTC</h1>")
	assert.Contains(t, html, "{\n  &#34;info&#34;: {\n    &#34;satid&#34;: 25544\n  }\n}")
	assert.Contains(t, html, `<p class="error">Error fetching data: JSON decode error: invalid character &#39;&lt;&#39;</p>`)
	assert.Contains(t, html, "&amp;apiKey=***")
	assert.Contains(t, html, "&lt;b&gt;bad&lt;/b&gt;")
	assert.Contains(t, html, "What&#39;s Up")
	assert.Contains(t, html, "No data received or an unknown error occurred.")
	assert.NotContains(t, html, "<b>bad</b>")
}
