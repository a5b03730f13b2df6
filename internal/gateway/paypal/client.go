// Package paypal implements the hosted-session gateway: an order is created
// via the REST API and the buyer is redirected to the returned approval
// link. Settlement is confirmed by capturing the order, not by a signature.
package paypal

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/checkout-core/internal/gateway"
)

const defaultBaseURL = "https://api-m.sandbox.paypal.com"

// Config holds the REST API credentials for one PayPal app.
type Config struct {
	ClientID string
	Secret   string
	BaseURL  string // defaults to the sandbox API host
}

// Client talks to the PayPal checkout orders API.
type Client struct {
	clientID string
	secret   string
	baseURL  string
	http     *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New creates a Client from explicit credentials.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		clientID: cfg.ClientID,
		secret:   cfg.Secret,
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

var _ gateway.Gateway = (*Client)(nil)

// CreateSession creates a PayPal order and returns its approval link.
func (c *Client) CreateSession(ctx context.Context, req gateway.SessionRequest) (*gateway.Session, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "obtain access token")
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("intent", func(e *jx.Encoder) { e.Str("CAPTURE") })
		e.Field("purchase_units", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("reference_id", func(e *jx.Encoder) { e.Str(req.ReferenceID) })
					e.Field("amount", func(e *jx.Encoder) {
						e.Obj(func(e *jx.Encoder) {
							e.Field("currency_code", func(e *jx.Encoder) { e.Str(req.Currency) })
							e.Field("value", func(e *jx.Encoder) { e.Str(req.Amount.StringFixed(2)) })
						})
					})
				})
			})
		})
	})

	body, err := c.post(ctx, "/v2/checkout/orders", token, e.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "create checkout order")
	}

	session, err := parseOrder(body)
	if err != nil {
		return nil, errors.Wrap(err, "parse checkout order")
	}
	return session, nil
}

// VerifySettlement captures the approved order and checks the capture
// completed. The signature parameter is unused: this provider authenticates
// the confirmation by the capture call itself.
func (c *Client) VerifySettlement(ctx context.Context, orderID, _, _ string) error {
	token, err := c.token(ctx)
	if err != nil {
		return errors.Wrap(err, "obtain access token")
	}

	body, err := c.post(ctx, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", token, []byte("{}"))
	if err != nil {
		return errors.Wrap(err, "capture order")
	}

	status, err := parseStatus(body)
	if err != nil {
		return errors.Wrap(err, "parse capture response")
	}
	if status != "COMPLETED" {
		return gateway.ErrSettlementNotConfirmed
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, token string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return raw, nil
}

// token returns a cached OAuth access token, refreshing it when expired.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", form)
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(c.clientID, c.secret)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var (
		token     string
		expiresIn int64
	)
	d := jx.DecodeBytes(raw)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "access_token":
			v, err := d.Str()
			token = v
			return err
		case "expires_in":
			v, err := d.Int64()
			expiresIn = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("token response missing access_token")
	}

	c.accessToken = token
	// Refresh a minute early to avoid using a token at the edge of expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - time.Minute)
	return token, nil
}

func parseOrder(body []byte) (*gateway.Session, error) {
	var (
		orderID     string
		approveLink string
	)
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			orderID = v
			return err
		case "links":
			return d.Arr(func(d *jx.Decoder) error {
				var rel, href string
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "rel":
						v, err := d.Str()
						rel = v
						return err
					case "href":
						v, err := d.Str()
						href = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				if rel == "approve" || rel == "payer-action" {
					approveLink = href
				}
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if orderID == "" {
		return nil, errors.New("order response missing id")
	}
	if approveLink == "" {
		return nil, errors.New("order response missing approval link")
	}
	return &gateway.Session{OrderID: orderID, RedirectURL: approveLink}, nil
}

func parseStatus(body []byte) (string, error) {
	var status string
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "status" {
			v, err := d.Str()
			status = v
			return err
		}
		return d.Skip()
	}); err != nil {
		return "", err
	}
	return status, nil
}
