package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Product is one catalogue entry.
type Product struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// Catalogue searches an archive API and authorizes downloads.
type Catalogue interface {
	Search(ctx context.Context, code string, from, to time.Time) ([]Product, error)
	Token(ctx context.Context) (string, error)
	DownloadURL(p Product) string
}

// CatalogueConfig configures an OData catalogue.
type CatalogueConfig struct {
	SearchURL   string
	DownloadURL string
	TokenURL    string
	ClientID    string
	User        string
	Password    string
	Collection  string
	HTTPClient  *http.Client
}

// ODataCatalogue queries a Copernicus-style OData product catalogue.
type ODataCatalogue struct {
	cfg    CatalogueConfig
	oauth  *oauth2.Config
	client *http.Client

	mu  sync.Mutex
	tok *oauth2.Token
}

// NewODataCatalogue creates a catalogue client.
func NewODataCatalogue(cfg CatalogueConfig) *ODataCatalogue {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Collection == "" {
		cfg.Collection = "SENTINEL-5P"
	}
	return &ODataCatalogue{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: cfg.HTTPClient,
	}
}

// Token returns a valid access token for the shared account, refreshing it when expired.
func (c *ODataCatalogue) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tok.Valid() {
		return c.tok.AccessToken, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	tok, err := c.oauth.PasswordCredentialsToken(ctx, c.cfg.User, c.cfg.Password)
	if err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	c.tok = tok
	return tok.AccessToken, nil
}

type searchPage struct {
	Value    []Product `json:"value"`
	NextLink string    `json:"@odata.nextLink"`
}

// Search lists products of type code whose sensing start lies in [from, to).
func (c *ODataCatalogue) Search(ctx context.Context, code string, from, to time.Time) ([]Product, error) {
	const stamp = "2006-01-02T15:04:05.000Z"
	filter := fmt.Sprintf(
		"Collection/Name eq '%s' and contains(Name,'%s') and ContentDate/Start ge %s and ContentDate/Start lt %s",
		c.cfg.Collection, code, from.UTC().Format(stamp), to.UTC().Format(stamp),
	)
	q := url.Values{}
	q.Set("$filter", filter)
	q.Set("$orderby", "ContentDate/Start asc")
	q.Set("$top", "1000")

	next := c.cfg.SearchURL + "?" + q.Encode()
	var products []Product
	for next != "" {
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		products = append(products, page.Value...)
		next = page.NextLink
	}
	return products, nil
}

func (c *ODataCatalogue) fetchPage(ctx context.Context, u string) (*searchPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %s", resp.Status)
	}

	var page searchPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("search: decode: %w", err)
	}
	return &page, nil
}

// DownloadURL returns the product content URL.
func (c *ODataCatalogue) DownloadURL(p Product) string {
	return strings.TrimSuffix(c.cfg.DownloadURL, "/") + "(" + p.ID + ")/$value"
}
