package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestODataCatalogue(t *testing.T) {
	var tokenCalls int
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			tokenCalls++
			r.ParseForm()
			assert.Equal(t, "password", r.Form.Get("grant_type"))
			assert.Equal(t, "s5pguest", r.Form.Get("username"))
			assert.Equal(t, "cdse-public", r.Form.Get("client_id"))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok-1",
				"token_type":   "Bearer",
				"expires_in":   600,
			})
		case "/Products":
			filter := r.URL.Query().Get("$filter")
			assert.Contains(t, filter, "contains(Name,'L2__NO2___')")
			assert.Contains(t, filter, "ContentDate/Start ge 2021-07-31T23:00:00.000Z")
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("page") == "2" {
				json.NewEncoder(w).Encode(searchPage{Value: []Product{{ID: "b", Name: "B.nc"}}})
				return
			}
			next := srv.URL + "/Products?" + r.URL.RawQuery + "&page=2"
			json.NewEncoder(w).Encode(searchPage{Value: []Product{{ID: "a", Name: "A.nc"}}, NextLink: next})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cat := NewODataCatalogue(CatalogueConfig{
		SearchURL:   srv.URL + "/Products",
		DownloadURL: srv.URL + "/download/Products/",
		TokenURL:    srv.URL + "/token",
		ClientID:    "cdse-public",
		User:        "s5pguest",
		Password:    "s5pguest",
	})

	from := time.Date(2021, 7, 31, 23, 0, 0, 0, time.UTC)
	products, err := cat.Search(context.Background(), "L2__NO2___", from, from.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []Product{{ID: "a", Name: "A.nc"}, {ID: "b", Name: "B.nc"}}, products)

	tok, err := cat.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	_, err = cat.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls, "valid token should be reused")

	assert.True(t, strings.HasSuffix(cat.DownloadURL(Product{ID: "a"}), "/download/Products(a)/$value"))
}

func TestODataCatalogueSearchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cat := NewODataCatalogue(CatalogueConfig{SearchURL: srv.URL})
	_, err := cat.Search(context.Background(), "L2__CO____", time.Now(), time.Now().Add(time.Hour))
	assert.Error(t, err)
}
