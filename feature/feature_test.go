package feature

import (
	"errors"
	"strings"
	"testing"
)

func featureAt(t *testing.T, s Schema, v Vector, name string) float64 {
	t.Helper()
	i := s.Index(name)
	if i < 0 {
		t.Fatalf("schema %s has no field %q", s.Name, name)
	}
	return v[i]
}

func TestExtractURL_VectorShape(t *testing.T) {
	v, err := ExtractURL("https://example.com/login")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != URLSchema().Len() {
		t.Fatalf("vector length %d, schema says %d", len(v), URLSchema().Len())
	}
}

func TestExtractURL_Deterministic(t *testing.T) {
	const raw = "http://secure-paypal.login.example.com:8080/verify?a=1"
	a, err := ExtractURL(raw)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ExtractURL(raw)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("feature %q differs across runs: %v vs %v", URLSchema().Fields[i], a[i], b[i])
		}
	}
}

func TestExtractURL_RawIPHost(t *testing.T) {
	v, err := ExtractURL("http://192.168.10.5/login")
	if err != nil {
		t.Fatal(err)
	}
	if got := featureAt(t, URLSchema(), v, "UsingIP"); got != Phish {
		t.Fatalf("UsingIP = %v, want %v", got, Phish)
	}
	if got := featureAt(t, URLSchema(), v, "HTTPS"); got != Phish {
		t.Fatalf("HTTPS = %v, want %v", got, Phish)
	}
}

func TestExtractURL_Signals(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		field string
		want  float64
	}{
		{"shortener", "https://bit.ly/3xYz", "ShortURL", Phish},
		{"at symbol", "https://example.com@evil.test/", "Symbol@", Phish},
		{"hyphen domain", "https://secure-bank.test/", "PrefixSuffix-", Phish},
		{"https in domain", "https://https-login.test/", "HTTPSDomainURL", Phish},
		{"non-std port", "https://example.com:8443/", "NonStdPort", Phish},
		{"std port kept", "https://example.com:443/", "NonStdPort", Legit},
		{"double slash redirect", "https://example.com//evil.test", "Redirecting//", Phish},
		{"long url", "https://example.com/" + strings.Repeat("x", 80), "LongURL", Phish},
		{"medium url", "https://example.com/" + strings.Repeat("x", 40), "LongURL", Suspect},
		{"short url length", "https://example.com/", "LongURL", Legit},
		{"mailto", "https://example.com/contact?to=mailto:x@y.test", "InfoEmail", Phish},
		{"plain https", "https://example.com/", "HTTPS", Legit},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := ExtractURL(tc.url)
			if err != nil {
				t.Fatal(err)
			}
			if got := featureAt(t, URLSchema(), v, tc.field); got != tc.want {
				t.Fatalf("%s(%s) = %v, want %v", tc.field, tc.url, got, tc.want)
			}
		})
	}
}

func TestExtractURL_SubDomains(t *testing.T) {
	tests := []struct {
		url  string
		want float64
	}{
		{"https://example.com/", Legit},
		{"https://www.example.com/", Legit},
		{"https://a.b.example.com/", Suspect},
		{"https://a.b.c.example.com/", Phish},
		// Multi-label public suffix must not count as subdomains.
		{"https://www.example.co.uk/", Legit},
	}
	for _, tc := range tests {
		v, err := ExtractURL(tc.url)
		if err != nil {
			t.Fatal(err)
		}
		if got := featureAt(t, URLSchema(), v, "SubDomains"); got != tc.want {
			t.Fatalf("SubDomains(%s) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestExtractURL_Malformed(t *testing.T) {
	for _, raw := range []string{"", "not a url at all", "http://"} {
		if _, err := ExtractURL(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("ExtractURL(%q) err = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestExtractEmail_Keywords(t *testing.T) {
	v, err := ExtractEmail("URGENT: please verify your account immediately or it will be suspended!!!")
	if err != nil {
		t.Fatal(err)
	}
	s := EmailSchema()
	for _, f := range []string{"KeywordUrgent", "KeywordVerify", "KeywordAccount", "KeywordImmediately", "KeywordSuspended"} {
		if got := featureAt(t, s, v, f); got != Phish {
			t.Fatalf("%s = %v, want %v", f, got, Phish)
		}
	}
	if got := featureAt(t, s, v, "ExcessPunctuation"); got != Phish {
		t.Fatalf("ExcessPunctuation = %v, want %v", got, Phish)
	}
	if got := featureAt(t, s, v, "AllCapsRun"); got != Phish {
		t.Fatalf("AllCapsRun = %v, want %v", got, Phish)
	}
	if got := featureAt(t, s, v, "KeywordPassword"); got != Legit {
		t.Fatalf("KeywordPassword = %v, want %v", got, Legit)
	}
}

func TestExtractEmail_BenignText(t *testing.T) {
	v, err := ExtractEmail("Hey, can we meet tomorrow for lunch? The usual place works for me.")
	if err != nil {
		t.Fatal(err)
	}
	s := EmailSchema()
	for _, f := range s.Fields {
		if got := featureAt(t, s, v, f); got != Legit {
			t.Fatalf("%s = %v for benign text, want %v", f, got, Legit)
		}
	}
}

func TestExtractEmail_HTMLBodyKeepsLinks(t *testing.T) {
	body := `<html><body><p>Click <a href="http://10.0.0.1/login">here</a> to verify.</p></body></html>`
	v, err := ExtractEmail(body)
	if err != nil {
		t.Fatal(err)
	}
	s := EmailSchema()
	if got := featureAt(t, s, v, "LinkToRawIP"); got != Phish {
		t.Fatalf("LinkToRawIP = %v, want %v", got, Phish)
	}
	if got := featureAt(t, s, v, "KeywordVerify"); got != Phish {
		t.Fatalf("KeywordVerify = %v, want %v", got, Phish)
	}
}

func TestExtractEmail_Empty(t *testing.T) {
	for _, body := range []string{"", "   \n\t  "} {
		if _, err := ExtractEmail(body); !errors.Is(err, ErrMalformed) {
			t.Fatalf("ExtractEmail(%q) err = %v, want ErrMalformed", body, err)
		}
	}
}

func TestCheckHeaders_AuthFailures(t *testing.T) {
	f := CheckHeaders(map[string]string{
		"Received-SPF":           "fail (sender IP is 203.0.113.7)",
		"Authentication-Results": "mx.test; dkim=fail header.d=example.com",
	})
	if f.RiskScore != 0.8 {
		t.Fatalf("risk = %v, want 0.8", f.RiskScore)
	}
	if len(f.Anomalies) != 2 {
		t.Fatalf("anomalies = %d, want 2", len(f.Anomalies))
	}
}

func TestCheckHeaders_ReplyToMismatch(t *testing.T) {
	f := CheckHeaders(map[string]string{
		"From":     "PayPal Support <support@paypal.com>",
		"Reply-To": "collector@evil.test",
	})
	// Mismatch 0.3 + display-name keyword 0.1.
	if f.RiskScore != 0.4 {
		t.Fatalf("risk = %v, want 0.4", f.RiskScore)
	}
}

func TestCheckHeaders_CapAtOne(t *testing.T) {
	f := CheckHeaders(map[string]string{
		"Received-SPF":           "softfail",
		"Authentication-Results": "dkim=fail",
		"From":                   "Security Alert <alert@bank.test>",
		"Reply-To":               "other@elsewhere.test",
	})
	if f.RiskScore != 1.0 {
		t.Fatalf("risk = %v, want capped 1.0", f.RiskScore)
	}
}

func TestCheckHeaders_Clean(t *testing.T) {
	f := CheckHeaders(map[string]string{
		"From":         "Alice <alice@example.com>",
		"Received-SPF": "pass",
	})
	if f.RiskScore != 0 || len(f.Anomalies) != 0 {
		t.Fatalf("expected no findings, got %+v", f)
	}
}
