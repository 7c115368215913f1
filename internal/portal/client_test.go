package portal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oceanportal/workbench/internal/core/model"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestToken(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/token/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"access":"tok-123"}`))
	})
	tok, err := c.Token(context.Background(), "user", "pass")
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-123" {
		t.Fatalf("token = %q", tok)
	}
}

func TestTokenMissingAccess(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	if _, err := c.Token(context.Background(), "user", "pass"); err == nil {
		t.Fatal("want error for empty access field")
	}
}

func TestAccountSendsBearer(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(`{"id":"u-1","username":"moana","country_id":7}`))
	})
	acct, err := c.Account(context.Background(), "tok-123")
	if err != nil {
		t.Fatal(err)
	}
	if acct.CountryID != 7 || acct.Username != "moana" {
		t.Fatalf("account = %+v", acct)
	}
}

func TestLayerDerivesKind(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/layer/42/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"id":"42","layer_type":"WMS_UGRID","url":"https://w/wms","layer_name":"hs"}`))
	})
	d, err := c.Layer(context.Background(), "42")
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != model.RasterUGrid {
		t.Fatalf("kind = %s, want %s", d.Kind, model.RasterUGrid)
	}
}

func TestWidgetsCountryScope(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("country_id"); got != "7" {
			t.Errorf("country_id = %q", got)
		}
		w.Write([]byte(`[{"id":1,"title":"Tides","widget_type":"tide_chart","country_id":7}]`))
	})
	ws, err := c.Widgets(context.Background(), "tok", 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(ws) != 1 || ws[0].Title != "Tides" {
		t.Fatalf("widgets = %+v", ws)
	}
}

func TestUpstreamErrorStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})
	if _, err := c.Countries(context.Background()); err == nil {
		t.Fatal("want error on non-2xx status")
	}
}
