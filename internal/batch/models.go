package batch

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"docgate/internal/document/models"
	"docgate/internal/policy"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
)

// Action is a maker decision on one document.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

func (a Action) disposition() policy.Disposition {
	if a == ActionApprove {
		return policy.DispositionApproved
	}
	return policy.DispositionRejected
}

// Item is one requested action as submitted.
type Item struct {
	DocumentID string `json:"documentId"`
	Action     string `json:"action"`
	Comments   string `json:"comments,omitempty"`
}

// validItem is an Item after validation.
type validItem struct {
	index      int
	documentID id.DocumentID
	action     Action
	comments   string
}

// ItemError describes why one item failed.
type ItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ItemResult is the outcome of one item, in submission order.
type ItemResult struct {
	Index           int        `json:"index"`
	DocumentID      string     `json:"documentId"`
	Action          string     `json:"action"`
	Success         bool       `json:"success"`
	Status          string     `json:"status,omitempty"`
	Error           *ItemError `json:"error,omitempty"`
	IssuanceWarning string     `json:"issuanceWarning,omitempty"`
}

type Summary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Result is the batch response. It is also what an idempotent replay returns.
type Result struct {
	Summary Summary      `json:"summary"`
	Results []ItemResult `json:"results"`
}

// validate checks every item before any is processed and reports all problems.
func validate(items []Item, maxItems int) ([]validItem, error) {
	if len(items) == 0 || len(items) > maxItems {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("batch must contain between 1 and %d actions", maxItems)).
			WithDetail("count", strconv.Itoa(len(items)))
	}

	var issues []dErrors.Issue
	valid := make([]validItem, 0, len(items))
	for i, item := range items {
		v := validItem{index: i, comments: strings.TrimSpace(item.Comments)}

		docID, err := id.ParseDocumentID(strings.TrimSpace(item.DocumentID))
		if err != nil {
			issues = append(issues, dErrors.Issue{Index: i, Field: "documentId", Message: "must be a valid UUID"})
		}
		v.documentID = docID

		switch Action(strings.ToUpper(strings.TrimSpace(item.Action))) {
		case ActionApprove:
			v.action = ActionApprove
		case ActionReject:
			v.action = ActionReject
		default:
			issues = append(issues, dErrors.Issue{Index: i, Field: "action", Message: "must be APPROVE or REJECT"})
		}

		if utf8.RuneCountInString(v.comments) > models.MaxCommentLength {
			issues = append(issues, dErrors.Issue{Index: i, Field: "comments", Message: "must be at most 1000 characters"})
		}
		valid = append(valid, v)
	}
	if len(issues) > 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch contains invalid actions").WithIssues(issues)
	}
	return valid, nil
}

// groupByDocument keeps items for the same document together, in submission
// order, so they run sequentially.
func groupByDocument(items []validItem) [][]validItem {
	order := make([]id.DocumentID, 0, len(items))
	groups := make(map[id.DocumentID][]validItem, len(items))
	for _, item := range items {
		if _, seen := groups[item.documentID]; !seen {
			order = append(order, item.documentID)
		}
		groups[item.documentID] = append(groups[item.documentID], item)
	}
	out := make([][]validItem, 0, len(order))
	for _, docID := range order {
		out = append(out, groups[docID])
	}
	return out
}
