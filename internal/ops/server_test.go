package ops

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "steamwatch/pkg/logx"
)

func get(t *testing.T, url string, hdr map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "steamwatch_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := New(Config{Metrics: true, Pprof: true}, Deps{
		Stats:    func() any { return map[string]int{"subscribers": 2} },
		Gatherer: reg,
	}, logx.Nop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, body := get(t, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, ts.URL+"/stats", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"subscribers":2}`, body)

	code, body = get(t, ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "steamwatch_test_total 1")

	code, _ = get(t, ts.URL+"/debug/pprof/cmdline", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestDisabledEndpointsAndHealth(t *testing.T) {
	s := New(Config{}, Deps{Health: func() error { return errors.New("adapter down") }}, logx.Nop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, body := get(t, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "adapter down")

	code, _ = get(t, ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = get(t, ts.URL+"/debug/pprof/", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTokenAuth(t *testing.T) {
	s := New(Config{Token: "s3cret"}, Deps{}, logx.Nop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, _ := get(t, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, ts.URL+"/healthz?token=nope", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, ts.URL+"/healthz?token=s3cret", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, ts.URL+"/healthz", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, code)
}

func TestCheckBind(t *testing.T) {
	tests := []struct {
		addr string
		cfg  Config
		ok   bool
	}{
		{"127.0.0.1:6060", Config{}, true},
		{"localhost:6060", Config{}, true},
		{"[::1]:6060", Config{}, true},
		{":6060", Config{}, false},
		{"0.0.0.0:6060", Config{}, false},
		{"0.0.0.0:6060", Config{Token: "x"}, true},
		{"10.0.0.5:6060", Config{AllowInsecure: true}, true},
	}
	for _, tt := range tests {
		err := checkBind(tt.cfg, tt.addr)
		if tt.ok {
			assert.NoError(t, err, tt.addr)
		} else {
			assert.ErrorIs(t, err, ErrInsecureBind, tt.addr)
		}
	}
}

func TestStartStop(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Deps{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	code, body := get(t, "http://"+s.Addr()+"/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.HasPrefix(body, "ok"))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	assert.Nil(t, s.Supervisor())
	assert.Empty(t, s.Addr())
}
