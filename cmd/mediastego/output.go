package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"MediaSteGo/pkg/filehandler"
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/pipeline"
	"MediaSteGo/pkg/security"
	"MediaSteGo/pkg/store"
)

var (
	// Color printers
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	alertColor   = color.New(color.FgRed, color.Bold).SprintFunc()
)

func printInfo(format string, args ...any) {
	fmt.Printf("%s %s\n", infoColor("[*]"), fmt.Sprintf(format, args...))
}

func printSuccess(format string, args ...any) {
	fmt.Printf("%s %s\n", successColor("[+]"), fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s %s\n", warningColor("[!]"), fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", errorColor("[-]"), fmt.Sprintf(format, args...))
}

func printAlert(format string, args ...any) {
	fmt.Printf("%s %s\n", alertColor("[!!!]"), fmt.Sprintf(format, args...))
}

// Score bands for the coloured verdict line and the summary
const (
	highScore   = 0.8
	mediumScore = 0.5
	lowScore    = 0.2
)

func printScore(detected bool, confidence float64) {
	switch {
	case !detected:
		printSuccess("No steganography detected (%.2f)", confidence)
	case confidence > highScore:
		printAlert("HIGH probability of steganography detected (%.2f)", confidence)
	case confidence > mediumScore:
		printWarning("MEDIUM probability of steganography detected (%.2f)", confidence)
	default:
		printInfo("LOW probability of steganography detected (%.2f)", confidence)
	}
}

func displayResult(res *pipeline.Result, verbose bool) {
	fmt.Println("\n--- Analysis Results ---")
	fmt.Printf("Input: %s\n", res.Input)
	if res.Path != "" && res.Path != res.Input {
		fmt.Printf("Saved as: %s\n", res.Path)
	}
	if size, err := filehandler.GetFileSize(res.Path); err == nil {
		fmt.Printf("Size: %s\n", humanize.Bytes(uint64(size)))
	}
	if rep := res.Reputation; rep != nil {
		if rep.IsMalicious {
			printAlert("Source flagged by %s: %s (%.2f)", rep.Service, rep.ThreatType, rep.Confidence)
		} else {
			printSuccess("Source not listed by %s", rep.Service)
		}
	}

	switch {
	case res.Error != "":
		printError("Analysis failed: %s", res.Error)
	case res.Verdict != nil:
		displayVerdict(res.Verdict, verbose)
	case res.Aggregate != nil:
		displayAggregate(res.Aggregate, verbose)
	case res.Security != nil:
		displaySecurity(res.Security, verbose)
	}

	fmt.Printf("Analysis completed in %v\n", res.Duration.Round(time.Millisecond))
	fmt.Println("-------------------------")
}

func displayVerdict(v *models.Verdict, verbose bool) {
	fmt.Printf("Media type: %s\n", v.MediaType)
	if v.Error != "" {
		printError("Error: %s", v.Error)
		return
	}
	printScore(v.Detected, v.Confidence)

	if len(v.Methods) > 0 {
		fmt.Printf("Detection methods: %v\n", v.Methods)
	}
	if v.IndicatorScore != nil {
		fmt.Printf("Indicator score: %d\n", *v.IndicatorScore)
	}
	if vd := v.Video; vd != nil {
		fmt.Printf("Frames analyzed: %d, suspicious: %d (%.0f%%)\n",
			vd.FramesAnalyzed, vd.SuspiciousFrames, vd.SuspiciousRatio*100)
	}
	if v.Audio != nil {
		fmt.Print("Audio track: ")
		printScore(v.Audio.Detected, v.Audio.Confidence)
	}

	if len(v.Findings) > 0 {
		fmt.Println("\nFindings:")
		for i, finding := range v.Findings {
			fmt.Printf("%d. %s (Confidence: %.2f)\n", i+1, finding.Description, finding.Confidence)
			if verbose && finding.Details != "" {
				fmt.Printf("   Details: %s\n", finding.Details)
			}
		}
		if best, ok := v.GetStrongestFinding(); ok && len(v.Findings) > 1 {
			fmt.Printf("Strongest indicator: %s\n", best.Description)
		}
	}

	if verbose && len(v.Details) > 0 {
		fmt.Println("\nTests:")
		methods := make([]string, 0, len(v.Details))
		for m := range v.Details {
			methods = append(methods, string(m))
		}
		sort.Strings(methods)
		for _, m := range methods {
			r := v.Details[models.Method(m)]
			if err := r.Err(); err != nil {
				fmt.Printf("- %s: %v\n", m, err)
				continue
			}
			fmt.Printf("- %s: %.4f / %.4f\n", m, r.Value, r.Pair)
		}
	}

	for _, note := range v.Notes {
		fmt.Printf("Note: %s\n", note)
	}
}

func displayAggregate(r *models.AggregateReport, verbose bool) {
	if r.Error != "" {
		printError("Error: %s", r.Error)
		return
	}
	printScore(r.Detected, r.Confidence)
	if r.ExternalsSkipped {
		fmt.Println("External detectors skipped")
	}

	fmt.Println("\nMethods:")
	for _, m := range models.AllMethods() {
		res, ok := r.DetailsByMethod[m]
		if !ok {
			continue
		}
		if res.Errored() {
			fmt.Printf("- %s: %s\n", m.Label(), warningColor(res.Error))
			continue
		}
		fmt.Printf("- %s: detected=%t confidence=%.2f\n", m.Label(), res.Detected, res.Confidence)
	}

	if verbose && r.LSB != nil {
		fmt.Println("\nLSB verdict:")
		displayVerdict(r.LSB, verbose)
	}
}

func displaySecurity(r *security.Report, verbose bool) {
	status := r.SecurityStatus
	switch status.ThreatLevel {
	case security.ThreatNone:
		printSuccess("Threat level: %s", status.ThreatLevel)
	case security.ThreatLow:
		printInfo("Threat level: %s", status.ThreatLevel)
	case security.ThreatMedium:
		printWarning("Threat level: %s", status.ThreatLevel)
	default:
		printAlert("Threat level: %s", status.ThreatLevel)
	}
	if r.Error != "" {
		printError("Error: %s", r.Error)
	}

	for _, w := range status.Warnings {
		printWarning("%s", w)
	}
	if len(status.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for i, rec := range status.Recommendations {
			fmt.Printf("%d. %s\n", i+1, rec)
		}
	}

	if verbose && r.Metadata != nil && len(r.Metadata.SuspiciousFields) > 0 {
		fmt.Printf("\nSuspicious metadata: %v\n", r.Metadata.SuspiciousFields)
	}
	if verbose && r.Analysis.Steganography != nil {
		fmt.Println("\nSteganography verdict:")
		displayVerdict(r.Analysis.Steganography, verbose)
	}
}

func printSummary(results []pipeline.Result) {
	var clean, suspicious, confirmed, failed int

	for i := range results {
		res := &results[i]
		switch {
		case res.Error != "" || (res.Verdict != nil && res.Verdict.Error != ""):
			failed++
		case !res.Detected() || res.Confidence() < lowScore:
			clean++
		case res.Confidence() < 0.7:
			suspicious++
		default:
			confirmed++
		}
	}

	fmt.Println("\n=== Analysis Summary ===")
	fmt.Printf("Total files analyzed: %s\n", humanize.Comma(int64(len(results))))
	fmt.Printf("%s Clean files: %d\n", successColor("[+]"), clean)

	if failed > 0 {
		fmt.Printf("%s Failed analyses: %d\n", errorColor("[-]"), failed)
	}
	if suspicious > 0 {
		fmt.Printf("%s Suspicious files: %d\n", warningColor("[!]"), suspicious)
	}

	if confirmed > 0 {
		fmt.Printf("%s Confirmed steganography: %d\n", alertColor("[!!!]"), confirmed)

		fmt.Println("\nFiles with high probability of steganography:")
		for i := range results {
			if results[i].Detected() && results[i].Confidence() >= 0.7 {
				fmt.Printf("- %s (Score: %.2f)\n", results[i].Input, results[i].Confidence())
			}
		}
	}
}

func printHistory(records []store.Record) {
	fmt.Println("=== Recent Verdicts ===")
	for _, r := range records {
		line := fmt.Sprintf("%s  %-6s detected=%-5t confidence=%.2f  %s",
			humanize.Time(r.CreatedAt), r.MediaType, r.Detected, r.Confidence, r.Input)
		switch {
		case r.Error != "":
			printError("%s (%s)", line, r.Error)
		case r.Detected:
			printWarning("%s", line)
		default:
			printSuccess("%s", line)
		}
	}
}
