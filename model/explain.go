package model

import "github.com/hazyhaar/vigie/feature"

// Plain-English reason catalog, keyed by schema name then feature name.
// Reason ordering follows the classifier's per-feature contributions, not
// catalog order.
var reasonCatalogs = map[string]map[string]string{
	"url": {
		"UsingIP":             "The link uses a raw IP address instead of a domain name — a common phishing trick to bypass filters.",
		"LongURL":             "The URL is unusually long, which can be used to hide the real destination.",
		"ShortURL":            "The link uses a URL shortener (e.g. bit.ly), masking where it actually leads.",
		"Symbol@":             "The URL contains an '@' symbol, which makes browsers ignore everything before it — a classic redirect trick.",
		"Redirecting//":       "The URL has an unexpected double-slash redirect, possibly sending you to a different site.",
		"PrefixSuffix-":       "The domain contains a hyphen (e.g. paypal-login.com), often used to imitate legitimate brands.",
		"SubDomains":          "The URL has multiple subdomains (e.g. secure.login.bank.example.com), making it look official when it isn't.",
		"HTTPS":               "The site does not use HTTPS, so your connection is not encrypted.",
		"DomainRegLen":        "The domain was registered for a very short period — phishing sites are often short-lived.",
		"Favicon":             "The site loads its favicon from a different domain, which is unusual for legitimate sites.",
		"NonStdPort":          "The URL uses a non-standard port, which legitimate websites rarely do.",
		"HTTPSDomainURL":      "The word 'https' appears inside the domain name itself — a spoofing trick to look secure.",
		"RequestURL":          "External resources on this page are loaded from suspicious origins.",
		"AnchorURL":           "Links on this page point to a different domain than expected.",
		"LinksInScriptTags":   "Script or link tags reference external, potentially untrusted sources.",
		"ServerFormHandler":   "Form data may be submitted to a suspicious or blank destination.",
		"InfoEmail":           "The page sends data to an email address instead of a secure server.",
		"AbnormalURL":         "The URL structure is abnormal compared to the domain it claims to be.",
		"WebsiteForwarding":   "The page redirects you through multiple URLs — commonly used in phishing chains.",
		"StatusBarCust":       "The site customises the browser status bar to hide the true link destination.",
		"DisableRightClick":   "Right-click is disabled, preventing you from inspecting the page — a phishing red flag.",
		"UsingPopupWindow":    "The site uses pop-up windows, which can be used to steal credentials.",
		"IframeRedirection":   "The page uses hidden iframes that may load malicious content.",
		"AgeofDomain":         "The domain is very new — most phishing sites are created days before an attack.",
		"DNSRecording":        "No DNS record was found for this domain, suggesting it may be fake.",
		"WebsiteTraffic":      "The site has very low traffic, which is uncommon for legitimate organisations.",
		"PageRank":            "The site has a very low PageRank, indicating low trust and authority.",
		"GoogleIndex":         "The site is not indexed by Google — legitimate sites almost always are.",
		"LinksPointingToPage": "Very few or no external sites link to this page — a sign of low trust.",
		"StatsReport":         "This URL appears in known phishing/malware blacklists.",
	},
	"email": {
		"KeywordUrgent":      "The email creates a false sense of urgency (e.g. 'urgent', 'immediately').",
		"KeywordVerify":      "The email asks you to verify your account details — a classic phishing tactic.",
		"KeywordSuspended":   "The email threatens account suspension to pressure you into acting quickly.",
		"KeywordPassword":    "The email mentions passwords or login credentials.",
		"KeywordLogin":       "The email includes an unexpected login link or prompt.",
		"KeywordUpdate":      "The email requests an unexpected update of your personal information.",
		"KeywordAccount":     "The email refers to your 'account' combined with urgent language.",
		"KeywordClick":       "The email pressures you to click a link immediately.",
		"KeywordImmediately": "The email demands immediate action — a pressure tactic.",
		"ContainsLink":       "The email carries an unusual number of links.",
		"LinkToRawIP":        "A link in the email points at a raw IP address instead of a named site.",
		"ExcessPunctuation":  "Repeated exclamation marks create artificial urgency.",
		"AllCapsRun":         "Shouted all-caps words are a pressure tactic common in phishing mail.",
		"MoneySymbol":        "The email dangles money or payment amounts to bait a response.",
	},
}

// Fallback reasons when no single feature stands out.
var fallbackReasons = map[string]string{
	"url":   "The overall URL pattern matches known phishing websites.",
	"email": "The wording and tone match known phishing emails.",
}

const (
	maxReasons            = 5
	contributionThreshold = 0.01
)

// Explain translates a vector's strongest phishing-leaning contributions
// into plain-English reasons, most influential first, capped at five.
// Only called for Phishing verdicts; a verdict always ships at least one
// reason even when no feature clears the threshold.
func Explain(nb *NaiveBayes, v feature.Vector) []string {
	catalog := reasonCatalogs[nb.Schema.Name]
	var reasons []string
	for _, c := range nb.Contributions(v) {
		if len(reasons) >= maxReasons {
			break
		}
		if c.Value <= contributionThreshold {
			break
		}
		if text, ok := catalog[c.Name]; ok {
			reasons = append(reasons, text)
		} else {
			reasons = append(reasons, "Suspicious indicator: "+c.Name)
		}
	}
	if len(reasons) == 0 {
		if fb, ok := fallbackReasons[nb.Schema.Name]; ok {
			return []string{fb}
		}
		return []string{"The overall pattern matches known phishing artifacts."}
	}
	return reasons
}
