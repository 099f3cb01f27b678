package analyzer

import (
	"fmt"

	id "docgate/pkg/domain"
)

const systemPrompt = `You are a document forensics examiner for government-issued documents.
Inspect the supplied document image for signs of tampering, forgery, digital editing,
inconsistent fonts or metadata, OCR legibility and, where present, the holder's face.

Respond with a single JSON object and nothing else, using exactly these fields:
{
  "overall_score": integer 0-100,
  "scores": {"integrity": 0-100, "authenticity": 0-100, "metadata": 0-100, "ocr": 0-100, "biometric": 0-100, "security": 0-100},
  "tampering_detected": boolean,
  "tamper_risk": "NONE" | "LOW" | "MEDIUM" | "HIGH" | "CRITICAL",
  "has_face_image": boolean,
  "face_confidence": number 0-1,
  "face_features": array of 16 numbers in [0,1] summarising facial geometry, empty when no face,
  "findings": [{"category": string, "severity": "low" | "medium" | "high", "description": string}],
  "recommended_action": "APPROVE" | "REVIEW" | "REJECT"
}`

func userPrompt(docType id.DocumentType, mimeType, locale string, detailed bool) string {
	detail := "Keep finding descriptions short."
	if detailed {
		detail = "Describe every finding in detail."
	}
	if locale == "" {
		locale = "unspecified"
	}
	return fmt.Sprintf("Document type: %s. MIME type: %s. Expected issuing locale: %s. %s",
		docType, mimeType, locale, detail)
}
