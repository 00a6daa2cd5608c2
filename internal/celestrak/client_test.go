package celestrak

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issTLE = "ISS (ZARYA)\n" +
		"1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996\n" +
		"2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057\n"
	vanguardTLE = "VANGUARD 1\n" +
		"1 00005U 58002B   00179.78495062  .00000023  00000-0  28098-4 0  4753\n" +
		"2 00005  34.2682 348.7242 1859667 331.7664  19.3264 10.82419157413667\n"
)

func testClient(base string) *Client {
	return NewClient(Options{BaseURL: base, Rate: 1000, Burst: 10, Backoff: time.Millisecond}, testLogger)
}

// serveByCatalog answers CATNR queries from bodies and 500s for anything unknown.
func serveByCatalog(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Query().Get("CATNR")]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQueryURL(t *testing.T) {
	u, err := ByCatalogNumber(25544).URL(DefaultBaseURL, FormatTLE)
	require.NoError(t, err)
	assert.Equal(t, "https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=TLE", u)

	u, err = ByName("ISS (ZARYA)").URL(DefaultBaseURL, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, u, "NAME=ISS+%28ZARYA%29")
	assert.Contains(t, u, "FORMAT=JSON")

	u, err = ByGroup("stations").URL(DefaultBaseURL, FormatTLE)
	require.NoError(t, err)
	assert.Contains(t, u, "GROUP=stations")
}

func TestQueryValidate(t *testing.T) {
	assert.NoError(t, ByCatalogNumber(5).Validate())
	assert.Error(t, ByCatalogNumber(0).Validate())
	assert.Error(t, Query{Kind: KindCatalogNumber, Value: "ISS"}.Validate())
	assert.Error(t, ByName("  ").Validate())
	assert.Error(t, Query{Kind: "INTDES", Value: "1998-067A"}.Validate())
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTLE, "tle": FormatTLE, "JSON": FormatJSON, " json ": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestFetchSuccess(t *testing.T) {
	var gotUA, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotFormat = r.URL.Query().Get("FORMAT")
		_, _ = w.Write([]byte(issTLE))
	}))
	defer srv.Close()

	data, err := testClient(srv.URL).Fetch(context.Background(), ByCatalogNumber(25544))
	require.NoError(t, err)
	assert.Equal(t, issTLE, string(data))
	assert.Equal(t, "orbstate", gotUA)
	assert.Equal(t, "TLE", gotFormat)
}

// TestFetchBodyLimit verifies that responses exceeding the 50 MiB limit
// return an error instead of consuming unbounded memory.
func TestFetchBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		chunk := []byte(strings.Repeat("A", 1024*1024))
		for i := 0; i < 52; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background(), ByGroup("active"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte limit")
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background(), ByCatalogNumber(25544))
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(issTLE))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Rate: 1000, Burst: 10, Retries: 2, Backoff: time.Millisecond}, testLogger)
	data, err := c.Fetch(context.Background(), ByCatalogNumber(25544))
	require.NoError(t, err)
	assert.Equal(t, issTLE, string(data))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Rate: 1000, Burst: 10, Retries: 3, Backoff: time.Millisecond}, testLogger)
	_, err := c.Fetch(context.Background(), ByCatalogNumber(25544))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("No GP data found\n"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background(), ByName("NOT A SATELLITE"))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFetchAllConcatenates(t *testing.T) {
	srv := serveByCatalog(t, map[string]string{"25544": issTLE, "5": strings.TrimSuffix(vanguardTLE, "\n")})

	blocks, err := testClient(srv.URL).FetchBlocks(context.Background(), ByCatalogNumber(25544), ByCatalogNumber(5))
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "ISS (ZARYA)", blocks[0].Name)
	assert.Equal(t, "VANGUARD 1", blocks[1].Name)
}

// A failing extra query must not break the primary fetch.
func TestFetchAllExtraFailure(t *testing.T) {
	srv := serveByCatalog(t, map[string]string{"25544": issTLE})

	blocks, err := testClient(srv.URL).FetchBlocks(context.Background(), ByCatalogNumber(25544), ByCatalogNumber(99999))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0].Line1, "25544U")
}

func TestFetchAllPrimaryFailure(t *testing.T) {
	srv := serveByCatalog(t, map[string]string{"25544": issTLE})

	_, err := testClient(srv.URL).FetchAll(context.Background(), ByCatalogNumber(99999), ByCatalogNumber(25544))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary query CATNR=99999")
}

func TestFetchAllRejectsJSONCombination(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1", Format: FormatJSON}, testLogger)
	_, err := c.FetchAll(context.Background(), ByCatalogNumber(25544), ByCatalogNumber(5))
	assert.ErrorContains(t, err, "FORMAT=TLE")
}

func TestFetchBlocksJSON(t *testing.T) {
	body := `[{"OBJECT_NAME":"ISS (ZARYA)","NORAD_CAT_ID":25544,"EPOCH":"2025-02-14T04:19:39.999648",` +
		`"TLE_LINE1":"1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996",` +
		`"TLE_LINE2":"2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"}]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "JSON", r.URL.Query().Get("FORMAT"))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Format: FormatJSON, Rate: 1000, Burst: 10}, testLogger)
	blocks, err := c.FetchBlocks(context.Background(), ByCatalogNumber(25544))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, 25544, blocks[0].CatalogNumber)
}

func TestFetchCanceled(t *testing.T) {
	srv := serveByCatalog(t, map[string]string{"25544": issTLE})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).Fetch(ctx, ByCatalogNumber(25544))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheWriteAndPrune(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)

	_, _, err := c.LoadLatest()
	assert.ErrorIs(t, err, ErrCacheEmpty)

	base := time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		_, err := c.Write([]byte{byte('a' + i)}, base.Add(time.Duration(i)*time.Hour), FormatTLE)
		require.NoError(t, err)
	}
	e, err := c.Write([]byte(`[]`), base.Add(5*time.Hour), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, ".json", filepath.Ext(e.Path))
	assert.Equal(t, FormatJSON, e.Format)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gp_notanumber.tle"), []byte("x"), 0o644))

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].FetchedAt.Equal(base.Add(5*time.Hour)))
	assert.True(t, entries[1].FetchedAt.Equal(base.Add(3*time.Hour)))
	assert.Equal(t, FormatTLE, entries[1].Format)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 4)

	data, latest, err := c.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
	assert.Equal(t, e, latest)
}

func TestCacheMissingDir(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "absent"), 0)
	entries, err := c.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, _, err = c.LoadLatest()
	assert.ErrorIs(t, err, ErrCacheEmpty)
}
