package model

import (
	"context"
	"math"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleRecruiter is a recruiter user role.
	UserRoleRecruiter UserRole = "recruiter"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user with access to the history and dashboard views.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Category represents a question category.
type Category string

const (
	CategoryBehavioral      Category = "behavioral"
	CategoryTechnical       Category = "technical"
	CategorySituational     Category = "situational"
	CategoryLeadership      Category = "leadership"
	CategoryProblemSolving  Category = "problemSolving"
	CategoryCommunication   Category = "communication"
	CategoryCultural        Category = "cultural"
	CategoryManagerial      Category = "managerial"
	CategorySales           Category = "sales"
	CategoryCustomerService Category = "customerService"
	CategoryAnalytical      Category = "analytical"
	CategoryCreative        Category = "creative"
)

// Categories lists all known categories in display order.
var Categories = []Category{
	CategoryBehavioral,
	CategoryTechnical,
	CategorySituational,
	CategoryLeadership,
	CategoryProblemSolving,
	CategoryCommunication,
	CategoryCultural,
	CategoryManagerial,
	CategorySales,
	CategoryCustomerService,
	CategoryAnalytical,
	CategoryCreative,
}

var categoryLabels = map[Category]string{
	CategoryBehavioral:      "Behavioral",
	CategoryTechnical:       "Technical",
	CategorySituational:     "Situational",
	CategoryLeadership:      "Leadership",
	CategoryProblemSolving:  "Problem Solving",
	CategoryCommunication:   "Communication",
	CategoryCultural:        "Cultural Fit",
	CategoryManagerial:      "Managerial",
	CategorySales:           "Sales & Marketing",
	CategoryCustomerService: "Customer Service",
	CategoryAnalytical:      "Analytical",
	CategoryCreative:        "Creative",
}

// Label returns the human-readable name of a category.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Valid reports whether the category is a known one.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question represents a single interview question. Questions are immutable
// once issued to a session.
type Question struct {
	ID             int64      `json:"id"`
	Text           string     `json:"text"`
	Category       Category   `json:"category"`
	Difficulty     Difficulty `json:"difficulty"`
	ExpectedPoints []string   `json:"expected_points,omitempty"`
}

// Response holds the finalized transcript of one answered question.
// Created exactly once, when recording stops; never mutated afterward.
type Response struct {
	QuestionID int64         `json:"question_id"`
	Transcript string        `json:"transcript"`
	RecordedAt time.Time     `json:"recorded_at"`
	Duration   time.Duration `json:"duration"`
}

// Score holds the evaluation of one Response.
type Score struct {
	QuestionID   int64    `json:"question_id"`
	Value        float64  `json:"value"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// ScoreMin and ScoreMax bound every Score value.
const (
	ScoreMin = 1.0
	ScoreMax = 10.0
)

// ClampScore forces v into the valid score range.
func ClampScore(v float64) float64 {
	if v < ScoreMin {
		return ScoreMin
	}
	if v > ScoreMax {
		return ScoreMax
	}
	return v
}

// Recommendation is the coarse hiring label derived from the overall score.
type Recommendation string

const (
	RecommendationHighly      Recommendation = "highly_recommended"
	RecommendationRecommended Recommendation = "recommended"
	RecommendationConsider    Recommendation = "consider"
	RecommendationNot         Recommendation = "not_recommended"
)

// RecommendationFor maps an overall score to its recommendation tier.
func RecommendationFor(overall float64) Recommendation {
	switch {
	case overall >= 8.5:
		return RecommendationHighly
	case overall >= 7.0:
		return RecommendationRecommended
	case overall >= 5.5:
		return RecommendationConsider
	default:
		return RecommendationNot
	}
}

// Interview is one end-to-end candidate session, from name entry to
// completion. Responses and Scores are append-only and parallel; their
// length never exceeds the number of issued Questions.
type Interview struct {
	ID             string         `json:"id"`
	CandidateName  string         `json:"candidate_name"`
	Adaptive       bool           `json:"adaptive"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	Questions      []Question     `json:"questions"`
	Responses      []Response     `json:"responses"`
	Scores         []Score        `json:"scores"`
	OverallScore   float64        `json:"overall_score"`
	Recommendation Recommendation `json:"recommendation,omitempty"`
}

// Duration returns the wall-clock length of a completed interview,
// or zero while it is still running.
func (iv *Interview) Duration() time.Duration {
	if iv.EndedAt == nil {
		return 0
	}
	return iv.EndedAt.Sub(iv.StartedAt)
}

// Round1 rounds to one decimal place, the precision of every reported score.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SessionConfig selects what a new interview session looks like.
type SessionConfig struct {
	Categories    []Category `json:"categories"`
	QuestionCount int        `json:"question_count"`
	Difficulty    Difficulty `json:"difficulty,omitempty"`
	Adaptive      bool       `json:"adaptive"`
}

// InterviewSummary is the compact history-listing form of an interview.
type InterviewSummary struct {
	ID             string         `json:"id"`
	CandidateName  string         `json:"candidate_name"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	QuestionCount  int            `json:"question_count"`
	OverallScore   float64        `json:"overall_score"`
	Recommendation Recommendation `json:"recommendation"`
}
