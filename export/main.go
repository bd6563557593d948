// Package export renders a frozen session record into downloadable
// documents: a lossless JSON log and a formatted PDF transcript.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"leadqualdev/session"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Document is the lossless serialization of a frozen session. Field names
// match the transcript logs the original harness produced, so downstream
// analysis scripts keep working.
type Document struct {
	ConversationID     string                `json:"conversation_id"`
	Timestamp          time.Time             `json:"timestamp"`
	Status             session.Status        `json:"status"`
	Messages           []session.Message     `json:"messages"`
	IntentDetection    *session.IntentResult `json:"intent_detection"`
	TokenUsage         session.Usage         `json:"token_usage"`
	ExchangeCount      int                   `json:"exchange_count"`
	ConversationLength int                   `json:"conversation_length"`
}

// NewDocument assembles the export document from a session record.
func NewDocument(sess *session.Session) Document {
	botMessages := 0
	for _, msg := range sess.Messages {
		if msg.Role == session.RoleBot {
			botMessages++
		}
	}
	return Document{
		ConversationID:     sess.ID,
		Timestamp:          sess.CreatedAt,
		Status:             sess.Status,
		Messages:           sess.Messages,
		IntentDetection:    sess.Intent,
		TokenUsage:         sess.Usage,
		ExchangeCount:      sess.ExchangeCount,
		ConversationLength: botMessages,
	}
}

// StructuredJSON produces the lossless JSON document.
func StructuredJSON(sess *session.Session) ([]byte, error) {
	data, err := json.MarshalIndent(NewDocument(sess), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("could not encode session document: %w", err)
	}
	return data, nil
}

// ParseStructured reconstructs an equivalent session from a structured
// document, enforcing the frozen-record invariants.
func ParseStructured(data []byte) (*session.Session, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("could not decode session document: %w", err)
	}

	if !doc.Status.Terminal() {
		return nil, fmt.Errorf("document status %q is not terminal", doc.Status)
	}
	if doc.IntentDetection == nil {
		return nil, fmt.Errorf("document is missing the intent detection result")
	}

	prospectMessages := 0
	for _, msg := range doc.Messages {
		if msg.Role == session.RoleProspect {
			prospectMessages++
		}
	}
	if prospectMessages != doc.ExchangeCount {
		return nil, fmt.Errorf("exchange_count %d does not match %d prospect messages", doc.ExchangeCount, prospectMessages)
	}

	return &session.Session{
		ID:            doc.ConversationID,
		Messages:      doc.Messages,
		ExchangeCount: doc.ExchangeCount,
		Status:        doc.Status,
		Intent:        doc.IntentDetection,
		Usage:         doc.TokenUsage,
		CreatedAt:     doc.Timestamp,
	}, nil
}

// ContentTypePDF and ContentTypeJSON identify what Transcript produced.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeJSON = "application/json"
)

// renderPDF is swapped out in tests to exercise the fallback path.
var renderPDF = transcriptPDF

// Transcript renders the role-labeled PDF transcript. If the PDF renderer
// fails the structured JSON document is returned instead; an unavailable
// formatter is a degradation, not an error.
func Transcript(sess *session.Session) ([]byte, string, error) {
	data, err := renderPDF(sess)
	if err == nil {
		return data, ContentTypePDF, nil
	}

	fallback, jsonErr := StructuredJSON(sess)
	if jsonErr != nil {
		return nil, "", jsonErr
	}
	return fallback, ContentTypeJSON, nil
}

func transcriptPDF(sess *session.Session) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetTitle("Gym Sales Bot Conversation", false)
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(30, 58, 138)
	pdf.MultiCell(0, 10, "Gym Sales Bot Conversation", "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.MultiCell(0, 5, tr(fmt.Sprintf("Date: %s", sess.CreatedAt.Format("2006-01-02 15:04:05"))), "", "L", false)
	pdf.MultiCell(0, 5, tr(fmt.Sprintf("Conversation ID: %s", sess.ID)), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 8, "Conversation Transcript", "", "L", false)
	pdf.Ln(2)

	for _, msg := range sess.Messages {
		roleName := "You"
		if msg.Role == session.RoleBot {
			roleName = "Sales Bot"
			pdf.SetTextColor(30, 58, 138)
		} else {
			pdf.SetTextColor(5, 150, 105)
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, tr(roleName+":"), "", "L", false)

		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetX(pdf.GetX() + 5)
		pdf.MultiCell(0, 5, tr(msg.Text), "", "L", false)
		pdf.Ln(3)
	}

	if sess.Intent != nil {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.MultiCell(0, 8, "Intent Detection Results", "", "L", false)
		pdf.Ln(1)

		rows := [][2]string{
			{"Detected Intent", titleCase(string(sess.Intent.Category))},
			{"Confidence", fmt.Sprintf("%.1f%%", sess.Intent.Confidence*100)},
			{"Reasoning", sess.Intent.Reasoning},
		}
		if sess.Intent.RecommendedVisitTime != "" {
			rows = append(rows, [2]string{"Best Time to Visit", titleCase(sess.Intent.RecommendedVisitTime)})
		}

		for _, row := range rows {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.SetFillColor(240, 248, 255)
			pdf.CellFormat(50, 7, tr(row[0]), "1", 0, "L", true, 0, "")
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(130, 7, tr(row[1]), "1", "L", false)
		}
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.MultiCell(0, 6, tr(fmt.Sprintf("Outcome: %s", titleCase(string(sess.Status)))), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf rendering failed: %w", err)
	}
	return buf.Bytes(), nil
}

func titleCase(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
