package connection

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/bamboo/apierr"
)

func TestNew_Defaults(t *testing.T) {
	c := New("")
	assert.Equal(t, DefaultURL, c.URL())
	for _, code := range []int{200, 201, 202} {
		assert.True(t, c.Accepts(code), "code %d", code)
	}
	assert.False(t, c.Accepts(204))

	c.SetURL("http://example.test/")
	assert.Equal(t, "http://example.test", c.URL())
}

func TestDispatch_RejectsUnsupportedMethodWithoutRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := New(srv.URL, WithHTTPClient(srv.Client()))
	_, err := c.Dispatch(context.Background(), Request{Method: "PATCH", Path: "/datasets"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrValidation))
	assert.True(t, apierr.IsMisuse(err))
	assert.Zero(t, hits.Load())
}

func TestDispatch_SendsParamsAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/datasets/abc/summary", r.URL.Path)
		assert.Equal(t, "all", r.URL.Query().Get("select"))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		assert.Equal(t, "bamboo-test", r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, `{"amount":{"summary":{"count":19}}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithHTTPClient(srv.Client()), WithUserAgent("bamboo-test"))
	body, err := c.Dispatch(context.Background(), Request{
		Method: "get",
		Path:   "/datasets/abc/summary",
		Params: url.Values{"select": {"all"}},
	})
	require.NoError(t, err)
	assert.True(t, body.IsObject())
	assert.Equal(t, int64(19), body.Get("amount.summary.count").Int())
}

func TestDispatch_FormBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "x", r.PostForm.Get("name"))
		assert.Equal(t, "amount * 2", r.PostForm.Get("formula"))
		_, _ = io.WriteString(w, `{"id":"abc"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithHTTPClient(srv.Client()))
	body, err := c.Dispatch(context.Background(), Request{
		Method: MethodPost,
		Path:   "/datasets/abc/calculations",
		Form:   url.Values{"name": {"x"}, "formula": {"amount * 2"}},
	})
	require.NoError(t, err)
	assert.True(t, body.Has("id"))
}

func TestDispatch_MultipartBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, `["n/a"]`, r.FormValue("na_values"))

		f, hdr, err := r.FormFile("csv_file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "data.csv", hdr.Filename)
		b, _ := io.ReadAll(f)
		assert.Equal(t, "a,b\n1,2\n", string(b))

		_, _ = io.WriteString(w, `{"id":"new"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithHTTPClient(srv.Client()))
	body, err := c.Dispatch(context.Background(), Request{
		Method: MethodPost,
		Path:   "/datasets",
		Form:   url.Values{"na_values": {`["n/a"]`}},
		Files:  []File{{Field: "csv_file", Filename: "data.csv", Content: []byte("a,b\n1,2\n")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "new", body.Get("id").String())
}

func TestDispatch_StatusOutsideAcceptedSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"unknown column"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithHTTPClient(srv.Client()))
	_, err := c.Dispatch(context.Background(), Request{Method: MethodGet, Path: "/datasets/x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrRetrieval))

	var ae *apierr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 400, ae.Status)
	assert.Equal(t, http.MethodGet, ae.Method)
	assert.Equal(t, `{"error":"unknown column"}`, string(ae.Body))
}

func TestDispatch_CustomAcceptedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"x"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithHTTPClient(srv.Client()), WithAcceptedStatus(200, 400))
	body, err := c.Dispatch(context.Background(), Request{Method: MethodGet, Path: "/"})
	require.NoError(t, err)
	assert.True(t, body.Has("error"))
}

func TestDispatch_NonJSONBodyIsParsingError(t *testing.T) {
	for _, payload := range []string{"<html>oops</html>", "", `"just a string"`, "42", `{"broken":`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, payload)
		}))

		c := New(srv.URL, WithHTTPClient(srv.Client()))
		_, err := c.Dispatch(context.Background(), Request{Method: MethodGet, Path: "/"})
		srv.Close()

		require.Error(t, err, "payload %q", payload)
		assert.True(t, errors.Is(err, apierr.ErrParsing), "payload %q: %v", payload, err)
	}
}

func TestDispatch_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u := srv.URL
	srv.Close()

	c := New(u)
	_, err := c.Dispatch(context.Background(), Request{Method: MethodDelete, Path: "/datasets/x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrTransport))
	assert.Equal(t, apierr.KindTransport, apierr.KindOf(err))
}

func TestDispatch_LogsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	c := New(srv.URL, WithHTTPClient(srv.Client()), WithLogger(logger))

	body, err := c.Dispatch(context.Background(), Request{Method: MethodGet, Path: "/datasets/x/calculations"})
	require.NoError(t, err)
	assert.True(t, body.IsArray())
	assert.Contains(t, buf.String(), `"path":"/datasets/x/calculations"`)
	assert.Contains(t, buf.String(), `"status":200`)
	assert.Contains(t, buf.String(), `"request_id"`)
}

func TestDispatch_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithHTTPClient(srv.Client()), WithRateLimit(0.001, 1))
	_, err := c.Dispatch(context.Background(), Request{Method: MethodGet, Path: "/"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Dispatch(ctx, Request{Method: MethodGet, Path: "/"})
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/version", r.URL.Path)
		_, _ = io.WriteString(w, `{"version":"0.5.6","branch":"master"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithHTTPClient(srv.Client()))
	body, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.5.6", body.Get("version").String())
}

func TestLogger_CarriesComponentAndWritesThrough(t *testing.T) {
	var buf bytes.Buffer
	c := New("http://bamboo.test", WithLogger(zerolog.New(&buf)))

	c.Logger().Info().Str("dataset", "abc").Msg("dataset created")
	assert.Contains(t, buf.String(), `"component":"connection"`)
	assert.Contains(t, buf.String(), `"dataset":"abc"`)
}
