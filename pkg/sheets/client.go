package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Client performs Google Sheets values operations.
type Client interface {
	FirstSheetTitle(ctx context.Context, spreadsheetID string) (string, error)
	Get(ctx context.Context, spreadsheetID, rng string) ([][]string, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, data []ValueRange) error
}

// ValueRange is one A1 range and its row-major values. Values are written
// RAW, so numbers stay numeric.
type ValueRange struct {
	Range  string
	Values [][]any
}

// TokenFile is an OAuth user credential exported for offline use.
type TokenFile struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	TokenURI     string `json:"token_uri,omitempty"`
}

// Option configures the client.
type Option func(*apiClient)

// WithServiceAccountFile authenticates with a service account JSON key.
func WithServiceAccountFile(path string) Option {
	return func(c *apiClient) {
		c.serviceAccount = path
	}
}

// WithTokenFile authenticates with a refresh token file. Access tokens are
// refreshed automatically when they expire.
func WithTokenFile(path string) Option {
	return func(c *apiClient) {
		c.tokenFile = path
	}
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *apiClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the HTTP client. Credentials options are ignored
// when set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *apiClient) {
		c.http = hc
	}
}

type apiClient struct {
	serviceAccount string
	tokenFile      string
	baseURL        string
	http           *http.Client
	svc            *gsheets.Service
}

// NewClient creates a Sheets client. Without credential options it uses
// Application Default Credentials.
func NewClient(ctx context.Context, opts ...Option) (Client, error) {
	c := &apiClient{}
	for _, o := range opts {
		o(c)
	}

	var svcOpts []option.ClientOption
	switch {
	case c.http != nil:
		svcOpts = append(svcOpts, option.WithHTTPClient(c.http))
	case c.serviceAccount != "":
		svcOpts = append(svcOpts,
			option.WithCredentialsFile(c.serviceAccount),
			option.WithScopes(gsheets.SpreadsheetsScope),
		)
	case c.tokenFile != "":
		ts, err := tokenSource(ctx, c.tokenFile)
		if err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, option.WithTokenSource(ts))
	default:
		svcOpts = append(svcOpts, option.WithScopes(gsheets.SpreadsheetsScope))
	}
	if c.baseURL != "" {
		base := c.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		svcOpts = append(svcOpts, option.WithEndpoint(base))
	}

	svc, err := gsheets.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: create service")
	}
	c.svc = svc
	return c, nil
}

func tokenSource(ctx context.Context, path string) (oauth2.TokenSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: read token file")
	}
	var tf TokenFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return nil, eris.Wrap(err, "sheets: parse token file")
	}
	if tf.ClientID == "" || tf.ClientSecret == "" || tf.RefreshToken == "" {
		return nil, eris.New("sheets: token file needs client_id, client_secret and refresh_token")
	}

	endpoint := google.Endpoint
	if tf.TokenURI != "" {
		endpoint.TokenURL = tf.TokenURI
	}
	conf := &oauth2.Config{
		ClientID:     tf.ClientID,
		ClientSecret: tf.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       []string{gsheets.SpreadsheetsScope},
	}
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: tf.RefreshToken}), nil
}

func (c *apiClient) FirstSheetTitle(ctx context.Context, spreadsheetID string) (string, error) {
	ss, err := c.svc.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return "", eris.Wrap(err, "sheets: get spreadsheet")
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return "", eris.Errorf("sheets: spreadsheet %s has no sheets", spreadsheetID)
	}
	return ss.Sheets[0].Properties.Title, nil
}

func (c *apiClient) Get(ctx context.Context, spreadsheetID, rng string) ([][]string, error) {
	vr, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: get %s", rng)
	}
	out := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	return out, nil
}

func (c *apiClient) BatchUpdate(ctx context.Context, spreadsheetID string, data []ValueRange) error {
	if len(data) == 0 {
		return nil
	}
	req := &gsheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             make([]*gsheets.ValueRange, 0, len(data)),
	}
	for _, d := range data {
		values := make([][]interface{}, len(d.Values))
		for i, row := range d.Values {
			values[i] = row
		}
		req.Data = append(req.Data, &gsheets.ValueRange{Range: d.Range, Values: values})
	}

	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do(); err != nil {
		return eris.Wrap(err, "sheets: batch update")
	}
	return nil
}

// QuoteSheet returns a sheet title quoted for use in A1 notation.
func QuoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
