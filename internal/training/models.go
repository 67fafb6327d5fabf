package training

import "time"

type QuizKind string

const (
	QuizPreAssessment  QuizKind = "pre_assessment"
	QuizPostAssessment QuizKind = "post_assessment"
	QuizPractice       QuizKind = "practice"
	QuizFinalExam      QuizKind = "final_exam"
)

func (k QuizKind) Valid() bool {
	switch k {
	case QuizPreAssessment, QuizPostAssessment, QuizPractice, QuizFinalExam:
		return true
	}
	return false
}

type QuestionKind string

const (
	QuestionSingleChoice   QuestionKind = "single_choice"
	QuestionMultipleChoice QuestionKind = "multiple_choice"
	QuestionTrueFalse      QuestionKind = "true_false"
	QuestionFillInBlank    QuestionKind = "fill_in_blank"
	QuestionEssay          QuestionKind = "essay"
)

type Course struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Level  string `json:"level,omitempty"`
	Status string `json:"status,omitempty"`
}

type Module struct {
	ID              string `json:"id"`
	CourseID        string `json:"course_id"`
	Title           string `json:"title,omitempty"`
	Order           int    `json:"order"`
	DurationMinutes int    `json:"duration_minutes"`
}

type Lesson struct {
	ID       string `json:"id"`
	ModuleID string `json:"module_id"`
	Title    string `json:"title,omitempty"`
	Order    int    `json:"order"`
}

type Quiz struct {
	ID                  string     `json:"id"`
	ModuleID            string     `json:"module_id"`
	Title               string     `json:"title,omitempty"`
	Kind                QuizKind   `json:"kind"`
	TimeLimitMinutes    int        `json:"time_limit_minutes"`
	PassingScorePercent int        `json:"passing_score_percent"`
	MaxAttempts         int        `json:"max_attempts"` // 0 = unlimited
	Questions           []Question `json:"questions,omitempty"`
}

type Answer struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type Question struct {
	ID       string       `json:"id"`
	QuizID   string       `json:"quiz_id"`
	Kind     QuestionKind `json:"kind"`
	Prompt   string       `json:"prompt,omitempty"`
	Answers  []Answer     `json:"answers,omitempty"`
	Points   float64      `json:"points"`
	Order    int          `json:"order"`
	Required bool         `json:"required,omitempty"`
}

// ---- progress ----

type ScopeKind string

const (
	ScopeLesson ScopeKind = "lesson"
	ScopeModule ScopeKind = "module"
	ScopeCourse ScopeKind = "course"
	ScopeQuiz   ScopeKind = "quiz"
)

// Scope identifies exactly one lesson, module, course or quiz.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

func LessonScope(id string) Scope { return Scope{Kind: ScopeLesson, ID: id} }
func QuizScope(id string) Scope   { return Scope{Kind: ScopeQuiz, ID: id} }

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusLocked     Status = "locked"
)

// Progress is one user's state for one scope.
type Progress struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	Scope              Scope      `json:"scope"`
	CourseID           string     `json:"course_id,omitempty"`
	ModuleID           string     `json:"module_id,omitempty"`
	Status             Status     `json:"status"`
	ProgressPercentage int        `json:"progress_percentage"`
	Score              *int       `json:"score,omitempty"`
	TimeSpentMinutes   int        `json:"time_spent_minutes"`
	LastAccessedAt     time.Time  `json:"last_accessed_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// QuizAttempt is one graded submission. AttemptNumber is assigned by the
// Store and is contiguous from 1 per (UserID, QuizID).
type QuizAttempt struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	QuizID           string      `json:"quiz_id"`
	Answers          ResponseSet `json:"answers"`
	Score            int         `json:"score"`
	Passed           bool        `json:"passed"`
	TimeSpentMinutes int         `json:"time_spent_minutes"`
	AttemptNumber    int         `json:"attempt_number"`
	CompletedAt      time.Time   `json:"completed_at"`
}

// ---- phishing simulation ----

type ActionKind string

const (
	ActionEmailOpened          ActionKind = "email_opened"
	ActionLinkClicked          ActionKind = "link_clicked"
	ActionAttachmentDownloaded ActionKind = "attachment_downloaded"
	ActionFormSubmitted        ActionKind = "form_submitted"
	ActionReported             ActionKind = "reported"
)

func (k ActionKind) Valid() bool {
	switch k {
	case ActionEmailOpened, ActionLinkClicked, ActionAttachmentDownloaded, ActionFormSubmitted, ActionReported:
		return true
	}
	return false
}

type SessionStatus string

const (
	SessionStarted    SessionStatus = "started"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

func (s SessionStatus) Closed() bool { return s == SessionCompleted || s == SessionAbandoned }

type PhishingAction struct {
	Kind      ActionKind        `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	IPAddress string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

type SimulationSession struct {
	ID                 string           `json:"id"`
	UserID             string           `json:"user_id"`
	CampaignID         string           `json:"campaign_id"`
	TemplateID         string           `json:"template_id"`
	Status             SessionStatus    `json:"status"`
	Actions            []PhishingAction `json:"actions"`
	VulnerabilityScore int              `json:"vulnerability_score"`
	Completed          bool             `json:"completed"`
	StartedAt          time.Time        `json:"started_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
}
