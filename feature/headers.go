package feature

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// HeaderFindings is the result of the email header anomaly check.
// RiskScore is capped at 1.0 and rounded to two decimals.
type HeaderFindings struct {
	RiskScore float64  `json:"header_risk_score"`
	Anomalies []string `json:"anomalies_detected"`
}

// Weights for each header anomaly. Authentication failures dominate;
// the display-name heuristic is only a nudge.
const (
	spfFailWeight     = 0.4
	dkimFailWeight    = 0.4
	replyToWeight     = 0.3
	displayNameWeight = 0.1
)

var displayNameKeywords = []string{
	"support", "billing", "admin", "security", "alert", "account", "update",
}

var angleAddrRe = regexp.MustCompile(`<([^>]+)>`)

// CheckHeaders inspects client-supplied email headers for common phishing
// anomalies: failed SPF/DKIM verification, a Reply-To that diverges from
// From, and authority keywords in the display name. Header values are
// whatever the mail client observed; nothing is re-verified here.
func CheckHeaders(headers map[string]string) HeaderFindings {
	var anomalies []string
	risk := 0.0

	spf := strings.ToLower(header(headers, "Received-SPF"))
	if strings.Contains(spf, "fail") {
		// Catches both "fail" and "softfail".
		anomalies = append(anomalies, "SPF validation failed, sender IP is not authorized.")
		risk += spfFailWeight
	}

	auth := strings.ToLower(header(headers, "Authentication-Results"))
	if strings.Contains(auth, "dkim=fail") {
		anomalies = append(anomalies, "DKIM signature validation failed. Email may be spoofed.")
		risk += dkimFailWeight
	}

	from := strings.ToLower(header(headers, "From"))
	replyTo := strings.ToLower(header(headers, "Reply-To"))
	fromAddr := extractAddr(from)
	replyAddr := extractAddr(replyTo)
	if fromAddr != "" && replyAddr != "" &&
		!strings.Contains(replyAddr, fromAddr) && !strings.Contains(fromAddr, replyAddr) {
		anomalies = append(anomalies, fmt.Sprintf(
			"Reply-To address (%s) does not match From address (%s).", replyAddr, fromAddr))
		risk += replyToWeight
	}

	displayName := from
	if i := strings.Index(from, "<"); i >= 0 {
		displayName = strings.TrimSpace(from[:i])
	}
	for _, kw := range displayNameKeywords {
		if strings.Contains(displayName, kw) {
			anomalies = append(anomalies, "Sender display name contains typical urgency/authority keywords.")
			risk += displayNameWeight
			break
		}
	}

	return HeaderFindings{
		RiskScore: math.Round(math.Min(1.0, risk)*100) / 100,
		Anomalies: anomalies,
	}
}

// header does a case-insensitive lookup so callers can pass headers in
// whatever casing their client produced.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func extractAddr(h string) string {
	if m := angleAddrRe.FindStringSubmatch(h); m != nil {
		return m[1]
	}
	return h
}
