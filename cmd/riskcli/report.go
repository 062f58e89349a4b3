package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/solguard/riskengine/internal/schema"
	"github.com/solguard/riskengine/internal/tracer"
)

var (
	critText = color.New(color.FgRed, color.Bold).SprintFunc()
	highText = color.New(color.FgRed).SprintFunc()
	medText  = color.New(color.FgYellow).SprintFunc()
	lowText  = color.New(color.FgCyan).SprintFunc()
	okText   = color.New(color.FgGreen, color.Bold).SprintFunc()
)

func severityText(s schema.Severity) string {
	switch s {
	case schema.SeverityCritical:
		return critText(s.String())
	case schema.SeverityHigh:
		return highText(s.String())
	case schema.SeverityMedium:
		return medText(s.String())
	case schema.SeverityLow:
		return lowText(s.String())
	default:
		return s.String()
	}
}

func riskText(level schema.RiskLevel) string {
	switch level {
	case schema.RiskSafe:
		return okText(string(level))
	case schema.RiskModerate:
		return medText(string(level))
	case schema.RiskRisky:
		return highText(string(level))
	default:
		return critText(string(level))
	}
}

func printReport(r *schema.AnalysisReport) {
	fmt.Printf("\nMint:         %s\n", r.Mint)
	fmt.Printf("Safety score: %d/100\n", r.SafetyScore)
	fmt.Printf("Risk level:   %s\n", riskText(r.RiskLevel))
	if r.Partial {
		fmt.Printf("Note:         %s\n", medText("partial result, some detectors failed"))
	}

	detTable := tablewriter.NewWriter(os.Stdout)
	detTable.SetHeader([]string{"Detector", "Partial", "Findings", "Status"})
	for _, name := range schema.AllDetectors() {
		out, ok := r.Detectors[name]
		if !ok {
			continue
		}
		status := "ok"
		if out.Empty {
			status = "no signal"
			if out.FailedHard {
				status = "failed"
			}
		}
		detTable.Append([]string{
			string(name),
			fmt.Sprintf("%d", out.PartialScore),
			fmt.Sprintf("%d", len(out.Findings)),
			status,
		})
	}
	fmt.Println()
	detTable.Render()

	if len(r.Findings) == 0 {
		fmt.Println("\n" + okText("No findings."))
		return
	}
	fmt.Println()
	for _, f := range r.Findings {
		line := fmt.Sprintf("[%s] %s", severityText(f.Severity), f.Message)
		if len(f.ContributingAddresses) > 0 {
			line += " (" + summarizeAddresses(f.ContributingAddresses) + ")"
		}
		fmt.Println(line)
	}
}

func printTrace(result *tracer.Result) {
	fmt.Printf("\nTrace target: %s\n", result.Target)
	fmt.Printf("Summary:      %s\n\n", result.Summary)

	if len(result.Chain) > 0 {
		hopTable := tablewriter.NewWriter(os.Stdout)
		hopTable.SetHeader([]string{"Hop", "From", "Amount SOL", "Entity", "Label"})
		for _, hop := range result.Chain {
			hopTable.Append([]string{
				fmt.Sprintf("%d", hop.Level),
				abbrev(hop.From),
				fmt.Sprintf("%.3f", hop.AmountSOL),
				string(hop.EntityType),
				hop.EntityLabel,
			})
		}
		hopTable.Render()
	}

	if len(result.CEXDeposits) > 0 {
		fmt.Println("\n" + highText("CEX deposits found:"))
		for _, dep := range result.CEXDeposits {
			fmt.Printf("  hop %d: %s via %s (%.3f SOL)\n", dep.Hop, dep.Exchange, abbrev(dep.Address), dep.AmountSOL)
		}
	}

	if len(result.PotentialNextRugs) > 0 {
		fmt.Println("\n" + highText("Potential next rugs:"))
		for _, rug := range result.PotentialNextRugs {
			fmt.Printf("  %s holds %s\n", abbrev(rug.Holder), abbrev(rug.Mint))
		}
	}

	if len(result.WashTrading.CircularCounterparties) > 0 {
		fmt.Printf("\n%s circular counterparties, %.2f SOL suspicious volume\n",
			critText(fmt.Sprintf("%d", len(result.WashTrading.CircularCounterparties))),
			result.WashTrading.SuspiciousVolumeSOL)
	}
}

func summarizeAddresses(addrs []string) string {
	if len(addrs) <= 3 {
		short := make([]string, len(addrs))
		for i, a := range addrs {
			short[i] = abbrev(a)
		}
		return strings.Join(short, ", ")
	}
	return fmt.Sprintf("%s and %d more", abbrev(addrs[0]), len(addrs)-1)
}
