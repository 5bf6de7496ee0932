package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/Navneet-55/msmesolut/internal/llm"
	"github.com/Navneet-55/msmesolut/internal/store"
)

const trainingExcerptLen = 200

var (
	planArticleTypes     = []string{"manual", "sop", "policy"}
	trainingArticleTypes = []string{"manual", "sop", "article"}
)

// OnboardingAgent plans onboarding and training for employees.
type OnboardingAgent struct {
	base
	data PeopleStore
}

// NewOnboardingAgent creates the onboarding agent.
func NewOnboardingAgent(data PeopleStore, caps *llm.Capabilities) *OnboardingAgent {
	return &OnboardingAgent{base: newBase(caps), data: data}
}

// Type returns Onboarding.
func (a *OnboardingAgent) Type() Type { return Onboarding }

// Execute runs one onboarding action.
func (a *OnboardingAgent) Execute(ctx context.Context, organizationID string, in Input) (*Result, error) {
	action, err := prepare(Onboarding, in)
	if err != nil {
		return nil, err
	}
	switch action {
	case ActionCreatePlan:
		return a.createPlan(ctx, organizationID, in)
	case ActionGenerateTraining:
		return a.generateTraining(ctx, organizationID, in.String("employeeId"))
	case ActionAssessProgress:
		return a.assessProgress(ctx, organizationID, in.String("employeeId"))
	}
	return nil, &UnknownActionError{Action: in.Action}
}

func (a *OnboardingAgent) employee(ctx context.Context, organizationID, id string) (*store.Employee, error) {
	e, err := a.data.GetEmployee(ctx, organizationID, id)
	if err != nil {
		return nil, lookupError("Employee", id, err)
	}
	return e, nil
}

// OnboardingTask is one generated plan task.
type OnboardingTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Category    string `json:"category"`
	Completed   bool   `json:"completed"`
}

// GeneratedPlan is the extracted onboarding plan.
type GeneratedPlan struct {
	PlanName   string           `json:"planName"`
	Tasks      []OnboardingTask `json:"tasks"`
	Milestones []string         `json:"milestones"`
	Resources  []string         `json:"resources"`
}

const planSchema = `{
  "planName": "string",
  "tasks": [{"id": "string", "title": "string", "description": "string", "dueDate": "YYYY-MM-DD", "category": "string", "completed": false}],
  "milestones": ["string"],
  "resources": ["string"]
}`

func (a *OnboardingAgent) createPlan(ctx context.Context, organizationID string, in Input) (*Result, error) {
	orgName, err := organizationName(ctx, a.data, organizationID)
	if err != nil {
		return nil, err
	}
	existing, err := a.data.OnboardingPlans(ctx, organizationID, "", 5)
	if err != nil {
		return nil, fmt.Errorf("loading onboarding plans: %w", err)
	}
	articles, err := a.data.KnowledgeByTypes(ctx, organizationID, planArticleTypes, 10)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	names := make([]string, 0, len(existing))
	for _, p := range existing {
		names = append(names, fmt.Sprintf("%s (%d tasks)", p.Name, len(p.Tasks)))
	}
	titles := make([]string, 0, len(articles))
	for _, art := range articles {
		titles = append(titles, fmt.Sprintf("%s [%s]", art.Title, art.Type))
	}

	prompt := fmt.Sprintf(`Build an onboarding plan for a new employee at %s.

Employee: %s
Role: %s
Department: %s
Start date: %s

Existing plans for reference:
%s

Available documentation:
%s

Cover the first 90 days: week-one essentials, role training, introductions to key people, tools and system access, milestones and check-ins. Give every task a due date relative to the start date.

Answer as JSON:
%s`,
		orNA(orgName), in.String("employeeName"), in.String("role"), orNA(in.String("department")), orNA(in.String("startDate")),
		orNA(strings.Join(names, "\n")), orNA(strings.Join(titles, "\n")), planSchema)

	res, err := a.generate(ctx, prompt, 2000, 0.7)
	if err != nil {
		return nil, err
	}
	plan, err := extract[GeneratedPlan](ctx, a.caps, res.Text, planSchema)
	if err != nil {
		return nil, err
	}
	plan.Tasks = nonNil(plan.Tasks)
	plan.Milestones = nonNil(plan.Milestones)
	plan.Resources = nonNil(plan.Resources)

	return &Result{
		Output:    map[string]any{"plan": plan},
		Reasoning: "Created personalized onboarding plan tailored to the employee's role, department, and organizational context.",
		Metadata:  usageMetadata(res),
	}, nil
}

// TrainingModule is one unit of a curriculum.
type TrainingModule struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Objectives  []string       `json:"objectives"`
	Duration    string         `json:"duration"`
	Quiz        []QuizQuestion `json:"quiz"`
}

// QuizQuestion is a multiple-choice question; CorrectAnswer indexes Options.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer float64  `json:"correctAnswer"`
}

// Curriculum is the extracted training program.
type Curriculum struct {
	Modules  []TrainingModule `json:"modules"`
	Timeline string           `json:"timeline"`
}

const curriculumSchema = `{
  "modules": [{"name": "string", "description": "string", "objectives": ["string"], "duration": "string",
    "quiz": [{"question": "string", "options": ["string"], "correctAnswer": 0}]}],
  "timeline": "string"
}`

// excerpt truncates s to n bytes on a rune boundary, marking the cut.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func (a *OnboardingAgent) generateTraining(ctx context.Context, organizationID, employeeID string) (*Result, error) {
	emp, err := a.employee(ctx, organizationID, employeeID)
	if err != nil {
		return nil, err
	}
	articles, err := a.data.KnowledgeByTypes(ctx, organizationID, trainingArticleTypes, 10)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}
	material := make([]map[string]any, 0, len(articles))
	for _, art := range articles {
		material = append(material, map[string]any{
			"title":   art.Title,
			"type":    art.Type,
			"excerpt": excerpt(art.Content, trainingExcerptLen),
		})
	}

	prompt := fmt.Sprintf(`Design a training curriculum.

Employee: %s
Role: %s
Department: %s

Organizational material:
%s

Give each module learning objectives, a duration and a short quiz, and lay out an overall timeline.

Answer as JSON:
%s`, emp.Name, orNA(emp.Role), orNA(emp.Department), indentJSON(material), curriculumSchema)

	res, err := a.generate(ctx, prompt, 2000, 0.7)
	if err != nil {
		return nil, err
	}
	cur, err := extract[Curriculum](ctx, a.caps, res.Text, curriculumSchema)
	if err != nil {
		return nil, err
	}
	cur.Modules = nonNil(cur.Modules)

	return &Result{
		Output:    map[string]any{"curriculum": cur, "employeeId": emp.ID},
		Reasoning: "Generated role-specific training curriculum based on employee profile and available organizational knowledge.",
		Metadata:  usageMetadata(res),
	}, nil
}

// ProgressAssessment is the extracted onboarding review.
type ProgressAssessment struct {
	OverallProgress     float64  `json:"overallProgress"`
	OnboardingStatus    string   `json:"onboardingStatus"`
	TrainingStatus      string   `json:"trainingStatus"`
	Strengths           []string `json:"strengths"`
	NeedsAttention      []string `json:"needsAttention"`
	Recommendations     []string `json:"recommendations"`
	EstimatedCompletion string   `json:"estimatedCompletion"`
}

const assessmentSchema = `{
  "overallProgress": "number 0-100",
  "onboardingStatus": "string",
  "trainingStatus": "string",
  "strengths": ["string"],
  "needsAttention": ["string"],
  "recommendations": ["string"],
  "estimatedCompletion": "string"
}`

func (a *OnboardingAgent) assessProgress(ctx context.Context, organizationID, employeeID string) (*Result, error) {
	emp, err := a.employee(ctx, organizationID, employeeID)
	if err != nil {
		return nil, err
	}
	plans, err := a.data.OnboardingPlans(ctx, organizationID, emp.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("loading onboarding plans: %w", err)
	}
	summary := make([]map[string]any, 0, len(plans))
	for _, p := range plans {
		done := 0
		for _, t := range p.Tasks {
			if t.Completed {
				done++
			}
		}
		summary = append(summary, map[string]any{
			"name":           p.Name,
			"status":         p.Status,
			"tasks":          p.Tasks,
			"completedTasks": done,
			"totalTasks":     len(p.Tasks),
		})
	}
	hired := "N/A"
	if emp.HireDate != nil {
		hired = emp.HireDate.Format("2006-01-02")
	}

	prompt := fmt.Sprintf(`Assess this employee's onboarding progress.

Employee: %s
Role: %s
Department: %s
Hire date: %s

Onboarding plans:
%s

Estimate overall progress, describe onboarding and training status, strengths and what needs attention, recommend next steps and estimate when onboarding will be complete.

Answer as JSON:
%s`, emp.Name, orNA(emp.Role), orNA(emp.Department), hired, indentJSON(summary), assessmentSchema)

	res, err := a.generate(ctx, prompt, 1500, 0.6)
	if err != nil {
		return nil, err
	}
	assessment, err := extract[ProgressAssessment](ctx, a.caps, res.Text, assessmentSchema)
	if err != nil {
		return nil, err
	}
	assessment.Strengths = nonNil(assessment.Strengths)
	assessment.NeedsAttention = nonNil(assessment.NeedsAttention)
	assessment.Recommendations = nonNil(assessment.Recommendations)

	return &Result{
		Output:    map[string]any{"assessment": assessment, "employeeId": emp.ID},
		Reasoning: "Assessed employee onboarding and training progress to provide actionable insights and recommendations.",
		Metadata:  usageMetadata(res),
	}, nil
}
