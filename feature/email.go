package feature

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// Email body features: the social-engineering vocabulary phishing mail
// leans on, plus a few structural signals. Keyword features carry the same
// tristate convention as the URL features.
var emailSchema = Schema{
	Name:    "email",
	Version: 1,
	Fields: []string{
		"KeywordUrgent", "KeywordVerify", "KeywordSuspended",
		"KeywordPassword", "KeywordLogin", "KeywordUpdate",
		"KeywordAccount", "KeywordClick", "KeywordImmediately",
		"ContainsLink", "LinkToRawIP", "ExcessPunctuation",
		"AllCapsRun", "MoneySymbol",
	},
}

// EmailSchema returns the email feature schema.
func EmailSchema() Schema { return emailSchema }

// emailKeywords are matched as whole words, case-insensitively, in schema
// order. The explainer catalog is keyed by the same feature names.
var emailKeywords = []string{
	"urgent", "verify", "suspended", "password", "login",
	"update", "account", "click", "immediately",
}

var (
	linkRe      = regexp.MustCompile(`(?i)https?://[^\s<>"')]+`)
	ipLinkRe    = regexp.MustCompile(`(?i)https?://\d{1,3}(\.\d{1,3}){3}`)
	capsRunRe   = regexp.MustCompile(`\b[A-Z]{4,}\b`)
	moneyRe     = regexp.MustCompile(`[$€£]|\b(USD|EUR|GBP)\b`)
	htmlTagRe   = regexp.MustCompile(`(?i)<\s*(html|body|div|p|a|table|span|br|img)[\s>/]`)
	wordSplitRe = regexp.MustCompile(`[^a-z0-9']+`)
)

// ExtractEmail extracts the email feature vector from a message body.
// HTML bodies are reduced to text first; links survive the reduction so
// the link features still see their targets. An empty body (after
// reduction) is malformed.
func ExtractEmail(body string) (Vector, error) {
	text := body
	if htmlTagRe.MatchString(body) {
		text = htmlToText(body)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrMalformed
	}

	lower := strings.ToLower(text)
	words := make(map[string]bool)
	for _, w := range wordSplitRe.Split(lower, -1) {
		if w != "" {
			words[w] = true
		}
	}

	v := make(Vector, 0, emailSchema.Len())
	for _, kw := range emailKeywords {
		if words[kw] {
			v = append(v, Phish)
		} else {
			v = append(v, Legit)
		}
	}

	// ContainsLink: one or two links is ordinary mail, more is a lure.
	switch links := len(linkRe.FindAllString(text, -1)); {
	case links == 0:
		v = append(v, Legit)
	case links <= 2:
		v = append(v, Suspect)
	default:
		v = append(v, Phish)
	}

	// LinkToRawIP.
	if ipLinkRe.MatchString(text) {
		v = append(v, Phish)
	} else {
		v = append(v, Legit)
	}

	// ExcessPunctuation: exclamation pressure.
	switch bangs := strings.Count(text, "!"); {
	case bangs >= 3:
		v = append(v, Phish)
	case bangs >= 1:
		v = append(v, Suspect)
	default:
		v = append(v, Legit)
	}

	// AllCapsRun: shouting words (URGENT, FINAL, ...).
	if capsRunRe.MatchString(text) {
		v = append(v, Phish)
	} else {
		v = append(v, Legit)
	}

	// MoneySymbol.
	if moneyRe.MatchString(text) {
		v = append(v, Suspect)
	} else {
		v = append(v, Legit)
	}

	return v, nil
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

var strictPolicy = bluemonday.StrictPolicy()

// htmlToText reduces an HTML body to scannable text. Markdown conversion is
// preferred because it keeps link targets inline; sanitization is the
// fallback for markup the converter rejects.
func htmlToText(body string) string {
	if md, err := mdConverter.ConvertString(body); err == nil && strings.TrimSpace(md) != "" {
		return md
	}
	return strictPolicy.Sanitize(body)
}
