package summary

import (
	"fmt"
	"strings"

	"github.com/ihaichao/stock-pulse/internal/models"
)

// buildPrompt renders the generation prompt for an event at the given level.
// Prompts are deliberately plain text: the providers behind LLMService do
// not share a structured-output dialect.
func buildPrompt(event *models.Event, level models.SummaryLevel) string {
	var b strings.Builder

	if level == models.SummaryDetail {
		b.WriteString("You are a financial analyst assistant. Write a detailed but accessible analysis (3-5 short paragraphs) of the following market event for a retail investor. Explain what the event is, why it matters, and what to watch for. Do not give investment advice.\n\n")
	} else {
		b.WriteString("You are a financial analyst assistant. Write a single-sentence plain-language summary of the following market event for a retail investor. Be concrete and neutral. Do not give investment advice.\n\n")
	}

	writeEventFacts(&b, event)

	if level == models.SummaryDetail {
		b.WriteString("\nRespond with the analysis only, no preamble.")
	} else {
		b.WriteString("\nRespond with the sentence only, no preamble.")
	}

	return b.String()
}

func writeEventFacts(b *strings.Builder, event *models.Event) {
	fmt.Fprintf(b, "Event type: %s\n", event.Type)
	fmt.Fprintf(b, "Date: %s\n", event.EventDate.UTC().Format("2006-01-02"))
	fmt.Fprintf(b, "Title: %s\n", event.Title)
	if event.Ticker != "" {
		fmt.Fprintf(b, "Ticker: %s\n", event.Ticker)
	}
	if event.Description != "" {
		fmt.Fprintf(b, "Description: %s\n", event.Description)
	}
	fmt.Fprintf(b, "Status: %s\n", event.Status)

	switch event.Type {
	case models.EventTypeEarnings:
		if event.EpsEstimate != nil {
			fmt.Fprintf(b, "EPS estimate: %.2f\n", *event.EpsEstimate)
		}
		if event.EpsActual != nil {
			fmt.Fprintf(b, "EPS actual: %.2f\n", *event.EpsActual)
		}
		if event.RevenueEstimate != nil {
			fmt.Fprintf(b, "Revenue estimate: %d\n", *event.RevenueEstimate)
		}
		if event.RevenueActual != nil {
			fmt.Fprintf(b, "Revenue actual: %d\n", *event.RevenueActual)
		}
		if event.ReportTime != "" {
			fmt.Fprintf(b, "Report time: %s\n", event.ReportTime)
		}

	case models.EventTypeMacro:
		if event.MacroEventName != "" {
			fmt.Fprintf(b, "Indicator: %s\n", event.MacroEventName)
		}
		if event.Consensus != "" {
			fmt.Fprintf(b, "Consensus: %s\n", event.Consensus)
		}
		if event.ActualValue != "" {
			fmt.Fprintf(b, "Actual: %s\n", event.ActualValue)
		}
		if event.PreviousValue != "" {
			fmt.Fprintf(b, "Previous: %s\n", event.PreviousValue)
		}

	case models.EventTypeFiling, models.EventTypeInsider:
		if event.FilingType != "" {
			fmt.Fprintf(b, "Filing type: %s\n", event.FilingType)
		}
		if event.FilingURL != "" {
			fmt.Fprintf(b, "Filing URL: %s\n", event.FilingURL)
		}

	case models.EventTypeAnalyst:
		if event.AnalystFirm != "" {
			fmt.Fprintf(b, "Firm: %s\n", event.AnalystFirm)
		}
		if event.FromRating != "" && event.ToRating != "" {
			fmt.Fprintf(b, "Rating change: %s -> %s\n", event.FromRating, event.ToRating)
		}
		if event.TargetPrice != nil {
			fmt.Fprintf(b, "Price target: %.2f\n", *event.TargetPrice)
		}
	}
}
