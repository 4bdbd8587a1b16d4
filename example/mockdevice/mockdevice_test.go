package mockdevice

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/devpoll"
)

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	h := New(Options{}).Handler()

	rec := post(t, h, "/status.xml", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := devpoll.NewBody(rec.Body.Bytes())
	cds, ok := body.Field("CDS")
	require.True(t, ok)
	assert.Equal(t, "3", cds)

	_, ok = body.Field("TEMP")
	assert.True(t, ok)
}

func TestSetCommand(t *testing.T) {
	d := New(Options{})
	h := d.Handler()

	rec := post(t, h, "/cmd", "CMD=SET&CDS=7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, d.CDS())

	cds, ok := devpoll.ExtractField(devpoll.NewBody(rec.Body.Bytes()), "CDS")
	require.True(t, ok)
	assert.Equal(t, "7", cds)
}

func TestZoneCommand(t *testing.T) {
	h := New(Options{Zones: 2}).Handler()

	rec := post(t, h, "/cmd", "CMD=SET&ZONE=2&LEVEL=40")
	require.Equal(t, http.StatusOK, rec.Code)

	fields := devpoll.ExtractFields(devpoll.NewBody(rec.Body.Bytes()), "ZONE", "LEVEL", "CDS")
	assert.Equal(t, map[string]string{"ZONE": "2", "LEVEL": "40"}, fields)

	rec = post(t, h, "/cmd", "ZONE=9&CMD=STATUS")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadCommands(t *testing.T) {
	h := New(Options{}).Handler()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown command", "CMD=REBOOT", http.StatusBadRequest},
		{"bad cds", "CMD=SET&CDS=lots", http.StatusBadRequest},
		{"malformed form", "CMD=%zz", http.StatusBadRequest},
		{"too large", "CMD=STATUS&PAD=" + strings.Repeat("x", maxCommandBytes), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, "/cmd", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestFailureRate(t *testing.T) {
	h := New(Options{FailureRate: 1}).Handler()

	rec := post(t, h, "/status.xml", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "device busy")
}
