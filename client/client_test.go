package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/jsandy/jsandy"
)

type greetInput struct {
	Name string `json:"name"`
}

type greetOutput struct {
	Message string `json:"message"`
}

func TestGet_EncodesQueryAndDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/greet")
		raw := r.URL.Query().Get("name")
		decoded, err := jsandy.DecodeField(raw)
		assert.NilError(t, err)
		assert.Equal(t, decoded, "ada")

		body, tagged, err := jsandy.EncodeBody(greetOutput{Message: "hello ada"})
		assert.NilError(t, err)
		if tagged {
			w.Header().Set(jsandy.SuperJSONHeader, "true")
		}
		w.Write([]byte(body))
	}))
	defer server.Close()

	c := New(server.URL)
	out, err := Get[greetInput, greetOutput](c, "/greet", greetInput{Name: "ada"})
	assert.NilError(t, err)
	assert.Equal(t, out.Message, "hello ada")
}

func TestPost_SendsPerFieldEnvelopesAsRawJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		assert.NilError(t, json.NewDecoder(r.Body).Decode(&raw))

		nameField, ok := raw["name"]
		assert.Check(t, ok)
		decoded, err := jsandy.DecodeField(string(nameField))
		assert.NilError(t, err)
		assert.Equal(t, decoded, "bea")

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := Post[greetInput, greetOutput](c, "/greet", greetInput{Name: "bea"})
	assert.NilError(t, err)
}

func TestReadResult_ReconstructsHttpErrorFromNon2xxBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "access denied")
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := Get[greetInput, greetOutput](c, "/greet", greetInput{Name: "x"})

	httpErr, ok := err.(*HttpError)
	assert.Check(t, ok)
	assert.Equal(t, httpErr.Status, http.StatusForbidden)
	assert.Equal(t, httpErr.Message, "access denied")
}

func TestWithHeader_SendsConfiguredHeaderOnEveryRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.Header.Get("Authorization"), "Bearer token")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(server.URL, WithHeader("Authorization", "Bearer token"))
	_, err := Get[greetInput, greetOutput](c, "/greet", greetInput{Name: "x"})
	assert.NilError(t, err)
}
