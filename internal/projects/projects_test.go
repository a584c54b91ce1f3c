package projects

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/coedaniel/aws-propuestas-v3/internal/errors"
)

type errDoer struct{}

func (errDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", time.Second)
}

func TestList_BareArray(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"p1","name":"E-commerce","status":"IN_PROGRESS","documentCount":2,"metadata":{"industry":"retail"}}]`))
	})

	list, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "E-commerce", list[0].Name)
	assert.Equal(t, 2, list[0].DocumentCount)
	assert.Equal(t, "retail", list[0].Metadata["industry"])
}

func TestList_WrappedObject(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"projects":[{"id":"p1","name":"A"},{"id":"p2","name":"B","status":"completed"}]}`))
	})

	list, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestList_EmptyWrapped(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"projects":[]}`))
	})

	list, err := c.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestList_ContractDrift(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id", `[{"name":"A"}]`},
		{"missing name", `[{"id":"p1"}]`},
		{"unknown status", `[{"id":"p1","name":"A","status":"exploded"}]`},
		{"wrong type", `[{"id":"p1","name":"A","documentCount":"two"}]`},
		{"object without projects", `{"items":[]}`},
		{"scalar", `"nope"`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.List(context.Background())
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrContractViolation), "err = %v", err)
			assert.Equal(t, 502, apperrors.StatusOf(err))
		})
	}
}

func TestList_Unavailable(t *testing.T) {
	_, err := NewWithDoer("http://projects.invalid", errDoer{}).List(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrUpstreamUnavailable))

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err = c.List(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrUpstreamUnavailable))
}

func TestCreate(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in CreateInput
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &in))
		assert.Equal(t, "Data lake", in.Name)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"project":{"id":"p9","name":"Data lake","status":"DRAFT"}}`))
	})

	p, err := c.Create(context.Background(), CreateInput{Name: "  Data lake "})
	require.NoError(t, err)
	assert.Equal(t, "p9", p.ID)
}

func TestCreate_Validation(t *testing.T) {
	c := NewWithDoer("http://projects.invalid", errDoer{})

	_, err := c.Create(context.Background(), CreateInput{Name: " "})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))

	_, err = c.Create(context.Background(), CreateInput{Name: "x", Status: "weird"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}

func TestDelete(t *testing.T) {
	var gotPath string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/projects/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Delete(context.Background(), "a b"))
	assert.Equal(t, "/projects/a%20b", gotPath)

	err := c.Delete(context.Background(), "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	err = c.Delete(context.Background(), "")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}

func TestGenerateDocuments(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents", r.URL.Path)
		_, _ = w.Write([]byte(`{"documents":[{"type":"word","url":"s3://bucket/p1.docx"}]}`))
	})

	out, err := c.GenerateDocuments(context.Background(), DocumentRequest{ProjectID: "p1", Types: []string{"word"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"documents":[{"type":"word","url":"s3://bucket/p1.docx"}]}`, string(out))

	_, err = c.GenerateDocuments(context.Background(), DocumentRequest{})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}
