package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageParams(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    PageParams
		wantErr bool
	}{
		{"defaults", url.Values{}, PageParams{Limit: 50}, false},
		{"explicit", url.Values{"limit": {"10"}, "offset": {"20"}}, PageParams{Limit: 10, Offset: 20}, false},
		{"max limit", url.Values{"limit": {"100"}}, PageParams{Limit: 100}, false},
		{"limit too large", url.Values{"limit": {"101"}}, PageParams{}, true},
		{"zero limit", url.Values{"limit": {"0"}}, PageParams{}, true},
		{"negative offset", url.Values{"offset": {"-1"}}, PageParams{}, true},
		{"not a number", url.Values{"limit": {"abc"}}, PageParams{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePageParams(tt.query)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Riz"}`))
	require.NoError(t, decodeJSON(httptest.NewRecorder(), r, &dst))
	assert.Equal(t, "Riz", dst.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := decodeJSON(httptest.NewRecorder(), r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Corps de requête vide")

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	assert.ErrorIs(t, decodeJSON(httptest.NewRecorder(), r, &dst), errBadBody)
}

func TestRequestBodyParser_JSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"adjustment": -3, "note": " carton\u0000 "}`))
	p := NewRequestBodyParser(r)

	require.NoError(t, p.Parse())
	assert.True(t, p.IsJSON())
	assert.Equal(t, "-3", p.Get("adjustment"))
	assert.Equal(t, "carton", p.Get("note"))
	assert.Empty(t, p.Get("missing"))
}

func TestRequestBodyParser_Form(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("adjustment=5&name=Sucre"))
	p := NewRequestBodyParser(r)

	require.NoError(t, p.Parse())
	assert.False(t, p.IsJSON())
	assert.Equal(t, "5", p.Get("adjustment"))
	assert.Equal(t, "Sucre", p.Get("name"))
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"adjustment":`))
	p := NewRequestBodyParser(r)

	assert.ErrorIs(t, p.Parse(), errBadBody)
	// A second call returns the cached error.
	assert.ErrorIs(t, p.Parse(), errBadBody)
}

func TestIntParam(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		body      string
		want      int
		wantFound bool
		wantErr   bool
	}{
		{"from body", "/p", `{"adjustment": 4}`, 4, true, false},
		{"from query", "/p?adjustment=-2", ``, -2, true, false},
		{"body wins over query", "/p?adjustment=9", `{"adjustment": 1}`, 1, true, false},
		{"absent", "/p", `{}`, 0, false, false},
		{"not an integer", "/p?adjustment=1.5", ``, 0, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPatch, tt.target, strings.NewReader(tt.body))
			body := NewRequestBodyParser(r)
			require.NoError(t, body.Parse())

			got, found, err := intParam(r, body, "adjustment")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "ligne1\nligne2", sanitizeInput("  ligne1\nligne2\x07  "))
	assert.Equal(t, "", sanitizeInput("\x00\x01"))
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(r))

	r.Header.Set("Authorization", "Bearer abc.def")
	assert.Equal(t, "abc.def", bearerToken(r))

	r.Header.Set("Authorization", "bearer   xyz ")
	assert.Equal(t, "xyz", bearerToken(r))

	r.Header.Set("Authorization", "Basic Zm9v")
	assert.Empty(t, bearerToken(r))
}
