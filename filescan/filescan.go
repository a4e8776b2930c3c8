// Package filescan performs static heuristic analysis of downloaded files:
// dangerous extensions, double extensions, magic byte mismatches, entropy,
// suspicious strings, and Office macro indicators. No sandboxing, no
// external services; content is inspected as bytes and never executed.
package filescan

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Verdict tiers.
const (
	VerdictSafe       = "safe"
	VerdictSuspicious = "suspicious"
	VerdictDangerous  = "dangerous"
)

// Tier thresholds on the normalized risk score.
const (
	dangerousThreshold  = 0.6
	suspiciousThreshold = 0.3
)

// Report is the outcome of scanning one file.
type Report struct {
	Filename     string   `json:"filename"`
	SizeBytes    int      `json:"size_bytes"`
	RiskScore    float64  `json:"risk_score"`
	Verdict      string   `json:"verdict"`
	DetectedType string   `json:"detected_type"`
	Entropy      float64  `json:"entropy"`
	Reasons      []string `json:"reasons"`
}

var dangerousExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".scr": true, ".pif": true, ".com": true,
	".msi": true, ".msp": true, ".mst": true,
	".ps1": true, ".psm1": true, ".psd1": true,
	".vbs": true, ".vbe": true, ".js": true, ".jse": true, ".wsf": true, ".wsh": true,
	".hta": true, ".cpl": true, ".inf": true, ".reg": true,
	".jar": true,
	".app": true, ".command": true,
	".sh": true, ".bash": true,
	".dll": true, ".sys": true,
	".iso": true, ".img": true,
}

var macroExtensions = map[string]bool{
	".docm": true, ".xlsm": true, ".pptm": true, ".dotm": true, ".xltm": true,
}

var archiveExtensions = map[string]bool{
	".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true,
}

type magicSig struct {
	prefix []byte
	desc   string
}

// Longest prefixes first so "PK\x03\x04" wins over shorter overlaps.
var magicSigs = []magicSig{
	{[]byte("PK\x03\x04"), "ZIP archive (or Office OOXML / JAR)"},
	{[]byte{0xd0, 0xcf, 0x11, 0xe0}, "OLE2 document (legacy Office with potential macros)"},
	{[]byte{0x7f, 'E', 'L', 'F'}, "ELF executable (Linux/macOS)"},
	{[]byte{0x89, 'P', 'N', 'G'}, "PNG image"},
	{[]byte("GIF87a"), "GIF image"},
	{[]byte("GIF89a"), "GIF image"},
	{[]byte("Rar!"), "RAR archive"},
	{[]byte{'7', 'z', 0xbc, 0xaf}, "7-Zip archive"},
	{[]byte{0xca, 0xfe, 0xba, 0xbe}, "macOS Mach-O / Java class"},
	{[]byte{0xcf, 0xfa, 0xed, 0xfe}, "macOS Mach-O executable (64-bit)"},
	{[]byte{0xfe, 0xed, 0xfa}, "macOS Mach-O executable"},
	{[]byte{0xff, 0xd8, 0xff}, "JPEG image"},
	{[]byte("%PDF"), "PDF document"},
	{[]byte("MZ"), "PE executable (Windows EXE/DLL)"},
	{[]byte{0x1f, 0x8b}, "GZIP compressed"},
}

// Expected magic descriptions per extension.
var extensionMagic = map[string][]string{
	".exe":  {"PE executable"},
	".dll":  {"PE executable"},
	".pdf":  {"PDF document"},
	".png":  {"PNG image"},
	".jpg":  {"JPEG image"},
	".jpeg": {"JPEG image"},
	".gif":  {"GIF image"},
	".zip":  {"ZIP archive"},
	".docx": {"ZIP archive"},
	".xlsx": {"ZIP archive"},
	".pptx": {"ZIP archive"},
	".doc":  {"OLE2 document"},
	".xls":  {"OLE2 document"},
	".rar":  {"RAR archive"},
	".7z":   {"7-Zip archive"},
	".gz":   {"GZIP compressed"},
	".jar":  {"ZIP archive"},
}

type stringPattern struct {
	re   *regexp.Regexp
	desc string
}

var suspiciousPatterns = []stringPattern{
	{regexp.MustCompile(`(?i)powershell`), "Contains PowerShell reference"},
	{regexp.MustCompile(`(?i)cmd\.exe|command\.com`), "References Windows command interpreter"},
	{regexp.MustCompile(`(?i)Invoke-(WebRequest|Expression|Mimikatz)`), "Contains PowerShell attack commands"},
	{regexp.MustCompile(`(?i)wget\s|curl\s`), "Contains download commands (wget/curl)"},
	{regexp.MustCompile(`(?i)/bin/(ba)?sh`), "Contains Unix shell reference"},
	{regexp.MustCompile(`(?i)base64[_\s]*-?d(ecode)?`), "Contains base64 decode instructions"},
	{regexp.MustCompile(`(?i)<script[^>]*>`), "Contains embedded script tags"},
	{regexp.MustCompile(`(?i)eval\s*\(`), "Contains eval() — potential code injection"},
	{regexp.MustCompile(`(?i)exec\s*\(`), "Contains exec() — potential code execution"},
	{regexp.MustCompile(`(?i)HKEY_(LOCAL_MACHINE|CURRENT_USER)`), "Modifies Windows registry"},
	{regexp.MustCompile(`(?i)\\\\[A-Za-z0-9]+\\`), "Contains UNC network path"},
	{regexp.MustCompile(`(?i)rm\s+-rf\s+/`), "Contains destructive delete command"},
	{regexp.MustCompile(`(?i)chmod\s+777`), "Sets overly permissive file permissions"},
	{regexp.MustCompile(`(?i)net\s+user\s+`), "Attempts user account manipulation"},
	{regexp.MustCompile(`(?i)nc\s+-[el]|ncat\s+`), "Contains netcat (reverse shell) command"},
}

var macroKeywords = [][]byte{
	[]byte("VBA"), []byte("AutoOpen"), []byte("Auto_Open"), []byte("Workbook_Open"),
	[]byte("Document_Open"), []byte("Shell"), []byte("CreateObject"),
}

// stringScanLimit bounds how much content is decoded for string scanning.
const stringScanLimit = 100 << 10

// Scan runs every heuristic check over the file content and returns a
// tiered report. The risk score is points earned over points available,
// clamped to [0, 1].
func Scan(filename string, content []byte) Report {
	var reasons []string
	riskPoints, maxPoints := 0, 0

	ext := extension(filename)

	// Extension class.
	maxPoints += 30
	switch {
	case dangerousExtensions[ext]:
		riskPoints += 30
		reasons = append(reasons, fmt.Sprintf("File extension '%s' is a known dangerous/executable type.", ext))
	case macroExtensions[ext]:
		riskPoints += 20
		reasons = append(reasons, fmt.Sprintf("Office file '%s' can contain macros — a common malware delivery method.", ext))
	case archiveExtensions[ext]:
		riskPoints += 5
		reasons = append(reasons, fmt.Sprintf("Archive file '%s' — contents cannot be verified without extraction.", ext))
	}

	// Double extension (invoice.pdf.exe).
	maxPoints += 20
	if fake, real, ok := doubleExtension(filename); ok {
		riskPoints += 20
		reasons = append(reasons, fmt.Sprintf(
			"Double extension detected: '%s%s' — file pretends to be '%s' but is actually '%s'.",
			fake, real, fake, real))
	}

	// Magic bytes vs extension.
	maxPoints += 25
	detected := detectMagic(content)
	if detected != "" {
		expected := extensionMagic[ext]
		switch {
		case len(expected) > 0 && !matchesAny(detected, expected):
			riskPoints += 25
			reasons = append(reasons, fmt.Sprintf(
				"File signature mismatch: extension is '%s' but actual content is '%s'. This file may be disguised.",
				ext, detected))
		case strings.Contains(detected, "PE executable") && ext != ".exe" && ext != ".dll" && ext != ".sys" && ext != ".scr":
			riskPoints += 25
			reasons = append(reasons, fmt.Sprintf(
				"File contains a Windows executable signature but has extension '%s'. Likely a disguised malware binary.",
				ext))
		}
	} else if dangerousExtensions[ext] {
		riskPoints += 5
		reasons = append(reasons, "File signature could not be identified — unusual for this file type.")
	}

	// Entropy.
	maxPoints += 15
	entropy := shannonEntropy(content)
	switch {
	case entropy > 7.5:
		riskPoints += 15
		reasons = append(reasons, fmt.Sprintf(
			"Very high entropy (%.2f/8.0) — file may be packed, encrypted, or obfuscated. Malware often uses packing to avoid detection.",
			entropy))
	case entropy > 6.8:
		riskPoints += 5
		reasons = append(reasons, fmt.Sprintf(
			"Elevated entropy (%.2f/8.0) — could indicate compressed or encoded content.", entropy))
	}

	// Suspicious strings.
	maxPoints += 30
	if text := safeText(content); text != "" {
		var found []string
		for _, p := range suspiciousPatterns {
			if p.re.MatchString(text) {
				found = append(found, p.desc)
			}
		}
		if len(found) > 0 {
			riskPoints += min(30, len(found)*8)
			for _, desc := range found[:min(5, len(found))] {
				reasons = append(reasons, desc)
			}
		}
	}

	// Office macro indicators.
	maxPoints += 10
	if macroExtensions[ext] || strings.Contains(detected, "OLE2") {
		var found []string
		for _, kw := range macroKeywords {
			if bytes.Contains(content, kw) {
				found = append(found, string(kw))
			}
		}
		if len(found) > 0 {
			riskPoints += 10
			reasons = append(reasons, fmt.Sprintf(
				"Contains macro indicators: %s. Malicious macros are a top malware delivery method.",
				strings.Join(found[:min(3, len(found))], ", ")))
		}
	}

	score := 0.0
	if maxPoints > 0 {
		score = math.Min(1.0, math.Round(float64(riskPoints)/float64(maxPoints)*1000)/1000)
	}

	verdict := VerdictSafe
	switch {
	case score >= dangerousThreshold:
		verdict = VerdictDangerous
	case score >= suspiciousThreshold:
		verdict = VerdictSuspicious
	}

	if detected == "" {
		detected = "Unknown"
	}
	if len(reasons) == 0 {
		reasons = []string{"No suspicious indicators found."}
	}
	roundedEntropy := 0.0
	if len(content) > 0 {
		roundedEntropy = math.Round(entropy*100) / 100
	}

	return Report{
		Filename:     filename,
		SizeBytes:    len(content),
		RiskScore:    score,
		Verdict:      verdict,
		DetectedType: detected,
		Entropy:      roundedEntropy,
		Reasons:      reasons,
	}
}

func extension(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		return strings.ToLower(filename[i:])
	}
	return ""
}

// doubleExtension reports an inner benign-looking extension hiding a
// dangerous real one.
func doubleExtension(filename string) (fake, real string, ok bool) {
	parts := strings.Split(filename, ".")
	if len(parts) < 3 {
		return "", "", false
	}
	fake = "." + strings.ToLower(parts[len(parts)-2])
	real = "." + strings.ToLower(parts[len(parts)-1])
	if dangerousExtensions[real] && !dangerousExtensions[fake] {
		return fake, real, true
	}
	return "", "", false
}

func detectMagic(content []byte) string {
	for _, sig := range magicSigs {
		if bytes.HasPrefix(content, sig.prefix) {
			return sig.desc
		}
	}
	return ""
}

func matchesAny(detected string, expected []string) bool {
	for _, e := range expected {
		if strings.Contains(detected, e) {
			return true
		}
	}
	return false
}

// shannonEntropy of the content in bits per byte: 0 uniform, 8 random.
func shannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	length := float64(len(data))
	entropy := 0.0
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func safeText(content []byte) string {
	if len(content) > stringScanLimit {
		content = content[:stringScanLimit]
	}
	return string(content)
}
