package model

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/hazyhaar/vigie/feature"
)

// Corpus is the immutable baseline training set. Retraining always starts
// from it and layers drained corrections on top; corrections never replace
// it.
type Corpus struct {
	URL   []Sample
	Email []Sample
}

// Builtin returns the embedded seed corpus, derived deterministically from
// curated URL and email examples. It keeps the service able to train a
// first model with no data files on disk.
func Builtin() Corpus {
	var c Corpus
	for _, s := range seedURLs {
		v, err := feature.ExtractURL(s.text)
		if err != nil {
			continue
		}
		c.URL = append(c.URL, Sample{Features: v, Phishing: s.phishing})
	}
	for _, s := range seedEmails {
		v, err := feature.ExtractEmail(s.text)
		if err != nil {
			continue
		}
		c.Email = append(c.Email, Sample{Features: v, Phishing: s.phishing})
	}
	return c
}

type seed struct {
	text     string
	phishing bool
}

var seedURLs = []seed{
	{"https://www.google.com/search?q=weather", false},
	{"https://en.wikipedia.org/wiki/Phishing", false},
	{"https://github.com/golang/go", false},
	{"https://www.amazon.com/gp/cart", false},
	{"https://news.ycombinator.com/", false},
	{"https://go.dev/doc/effective_go", false},
	{"https://www.mozilla.org/firefox/", false},
	{"https://duckduckgo.com/about", false},
	{"https://www.bbc.co.uk/news", false},
	{"https://stackoverflow.com/questions", false},
	{"https://www.gov.uk/renew-passport", false},
	{"https://pkg.go.dev/net/http", false},
	{"https://mail.google.com/mail/", false},
	{"https://www.dropbox.com/home", false},
	{"https://slack.com/signin", false},
	{"https://www.nytimes.com/section/world", false},

	{"http://192.0.2.44/secure/login.php", true},
	{"http://paypal-secure-login.example-verify.test/confirm", true},
	{"http://bit.ly/2xWinPrize", true},
	{"http://secure.login.account.update.bank-alert.test/session", true},
	{"http://example.com@collector.test/webscr", true},
	{"http://https-paypal.com.session.test/signin", true},
	{"http://login-verify.test:8081/account", true},
	{"http://tinyurl.com/free-gift-card-claim", true},
	{"http://203.0.113.9:8080/update/billing", true},
	{"http://apple-id.verify-account.test//redirect/signin", true},
	{"http://mail.test/contact?submit=mailto:claims@refund.test", true},
	{"http://secure-bankofamerica.test/auth/login/verify/session/token/renew/credentials/submit", true},
	{"http://account-suspended-alert.test/restore", true},
	{"http://198.51.100.23/wp-content/plugins/invoice.php", true},
	{"http://microsoft-365-billing.update-payment.test/portal", true},
	{"http://is.gd/claim-your-reward-now", true},
}

var seedEmails = []seed{
	{"Hey John, can we meet tomorrow for lunch?", false},
	{"Meeting notes from today's sprint planning are attached.", false},
	{"Please review the attached PR for the new feature when you get a chance.", false},
	{"Hey mom, just checking in. Call me later.", false},
	{"Thanks for the feedback, we will look into it next week.", false},
	{"Here is the agenda for Thursday's team meeting.", false},
	{"The quarterly report is ready for your review.", false},
	{"Reminder: the office is closed on Monday for the holiday.", false},
	{"Your package was delivered to the front desk this morning.", false},
	{"Lunch order is in, should arrive around noon.", false},

	{"Your account has been suspended. Please click here to verify your identity.", true},
	{"URGENT: Invoice attached. Please pay immediately!!!", true},
	{"Win a free iPhone! Click the link below to claim your prize now!", true},
	{"Final warning: Your mailbox is full. Upgrade storage immediately.", true},
	{"Verify your PayPal account immediately or it will be locked.", true},
	{"Your password expires today. Click http://198.51.100.7/reset to update it now.", true},
	{"Security alert: unusual login detected. Verify your account immediately!", true},
	{"You have won $500! Click here to claim: http://192.0.2.15/claim", true},
	{"Update your billing information immediately to avoid account suspension.", true},
	{"ACTION REQUIRED: confirm your login credentials now or lose access!!!", true},
}

// LoadURLCSV reads a baseline URL corpus in the phishing-website dataset
// layout: an optional Index column, the 30 feature columns in schema
// order, and a trailing class column where -1 marks phishing and 1 safe.
func LoadURLCSV(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("model: corpus header: %w", err)
	}

	skip := 0
	if len(header) > 0 && header[0] == "Index" {
		skip = 1
	}
	want := feature.URLSchema().Len()
	if len(header)-skip-1 != want {
		return nil, fmt.Errorf("model: corpus has %d feature columns, want %d", len(header)-skip-1, want)
	}

	var samples []Sample
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		v := make(feature.Vector, want)
		ok := true
		for i := range want {
			x, err := strconv.ParseFloat(rec[skip+i], 64)
			if err != nil {
				ok = false
				break
			}
			v[i] = x
		}
		if !ok {
			continue
		}
		class, err := strconv.Atoi(rec[len(rec)-1])
		if err != nil {
			continue
		}
		samples = append(samples, Sample{Features: v, Phishing: class == -1})
	}
	return samples, nil
}
