package training

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-training/internal/apperr"
)

// Response is a learner's answer to one question. The concrete variants are
// SingleChoiceAnswer, MultipleChoiceAnswer and FreeTextAnswer.
type Response interface {
	responseType() string
}

type SingleChoiceAnswer struct {
	AnswerID string `json:"answer_id"`
}

type MultipleChoiceAnswer struct {
	AnswerIDs []string `json:"answer_ids"`
}

type FreeTextAnswer struct {
	Text string `json:"text"`
}

func (SingleChoiceAnswer) responseType() string   { return "single_choice" }
func (MultipleChoiceAnswer) responseType() string { return "multiple_choice" }
func (FreeTextAnswer) responseType() string       { return "free_text" }

// ResponseSet maps question id to the submitted response.
type ResponseSet map[string]Response

type taggedResponse struct {
	Type      string   `json:"type"`
	AnswerID  string   `json:"answer_id,omitempty"`
	AnswerIDs []string `json:"answer_ids,omitempty"`
	Text      string   `json:"text,omitempty"`
}

func (rs ResponseSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]taggedResponse, len(rs))
	for qid, r := range rs {
		t := taggedResponse{Type: r.responseType()}
		switch v := r.(type) {
		case SingleChoiceAnswer:
			t.AnswerID = v.AnswerID
		case MultipleChoiceAnswer:
			t.AnswerIDs = v.AnswerIDs
		case FreeTextAnswer:
			t.Text = v.Text
		}
		out[qid] = t
	}
	return json.Marshal(out)
}

func (rs *ResponseSet) UnmarshalJSON(b []byte) error {
	var in map[string]taggedResponse
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	out := make(ResponseSet, len(in))
	for qid, t := range in {
		switch t.Type {
		case "single_choice":
			out[qid] = SingleChoiceAnswer{AnswerID: t.AnswerID}
		case "multiple_choice":
			out[qid] = MultipleChoiceAnswer{AnswerIDs: t.AnswerIDs}
		case "free_text":
			out[qid] = FreeTextAnswer{Text: t.Text}
		default:
			return fmt.Errorf("response %s: unknown type %q", qid, t.Type)
		}
	}
	*rs = out
	return nil
}

// DecodeResponses turns the wire form of a submission (question id -> raw
// JSON value) into typed responses, using each question's kind to decide the
// expected shape: a string id for single_choice/true_false, an array of ids
// for multiple_choice, and a string for fill_in_blank/essay.
func DecodeResponses(q Quiz, raw map[string]json.RawMessage) (ResponseSet, error) {
	byID := make(map[string]Question, len(q.Questions))
	for _, qu := range q.Questions {
		byID[qu.ID] = qu
	}
	out := make(ResponseSet, len(raw))
	for qid, msg := range raw {
		field := "answers." + qid
		qu, ok := byID[qid]
		if !ok {
			return nil, apperr.Validation(field, "unknown question")
		}
		if isNull(msg) {
			continue
		}
		switch qu.Kind {
		case QuestionSingleChoice, QuestionTrueFalse:
			var id string
			if err := json.Unmarshal(msg, &id); err != nil {
				return nil, apperr.Validation(field, "expected an answer id string")
			}
			out[qid] = SingleChoiceAnswer{AnswerID: id}
		case QuestionMultipleChoice:
			var ids []string
			if err := json.Unmarshal(msg, &ids); err != nil {
				return nil, apperr.Validation(field, "expected an array of answer ids")
			}
			out[qid] = MultipleChoiceAnswer{AnswerIDs: ids}
		case QuestionFillInBlank, QuestionEssay:
			var text string
			if err := json.Unmarshal(msg, &text); err != nil {
				return nil, apperr.Validation(field, "expected text")
			}
			out[qid] = FreeTextAnswer{Text: text}
		default:
			return nil, apperr.Validation(field, "unsupported question kind %q", qu.Kind)
		}
	}
	return out, nil
}

func isNull(msg json.RawMessage) bool {
	s := strings.TrimSpace(string(msg))
	return s == "" || s == "null"
}
