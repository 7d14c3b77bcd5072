package services

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quentel/formulaire/internal/models"
)

// FormStore abstracts the authoring and read-side persistence operations.
type FormStore interface {
	InsertForm(f *models.Form) error
	GetForm(id string) (*models.Form, error)
	UpdateForm(f *models.Form) error
	DeleteForm(id string) error

	InsertQuestion(q *models.Question) error
	GetQuestion(id string) (*models.Question, error)
	UpdateQuestion(q *models.Question) error
	DeleteQuestion(id string) error
	ListQuestions(formID string) ([]*models.Question, error)

	ListResponses(formID string) ([]*models.Response, error)
	GetResponse(id string) (*models.Response, error)
}

// QuestionDefinition is the authoring input for a new question.
type QuestionDefinition struct {
	Kind        models.QuestionKind   `json:"kind"`
	Title       string                `json:"title"`
	Description string                `json:"description,omitempty"`
	Required    bool                  `json:"is_required"`
	Order       int                   `json:"order"`
	Config      models.QuestionConfig `json:"config"`
}

// QuestionUpdate is the authoring input for editing a question. The kind is
// deliberately absent: it is immutable after creation.
type QuestionUpdate struct {
	Title       string                `json:"title"`
	Description string                `json:"description,omitempty"`
	Required    bool                  `json:"is_required"`
	Order       int                   `json:"order"`
	Config      models.QuestionConfig `json:"config"`
}

// FormUpdate patches mutable form fields; nil fields are left unchanged.
type FormUpdate struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	AcceptsResponses *bool   `json:"accepts_responses,omitempty"`
}

// FormService hosts form and question authoring. Question definitions pass
// through the schema validator before they are stored, and every created
// question gets a zero-state aggregate bucket.
type FormService struct {
	store       FormStore
	agg         *Aggregator
	now         func() time.Time
	idGenerator func() string
}

func NewFormService(store FormStore, agg *Aggregator) *FormService {
	return &FormService{
		store:       store,
		agg:         agg,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: func() string { return shortID(8) },
	}
}

func (s *FormService) CreateForm(ownerID, title, description string) (*models.Form, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, NewFieldError(ErrorInvalidTitle, "title", "title must not be empty")
	}
	now := s.now()
	form := &models.Form{
		ID:               s.idGenerator(),
		OwnerID:          ownerID,
		Title:            title,
		Description:      description,
		AcceptsResponses: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.InsertForm(form); err != nil {
		return nil, err
	}
	return form, nil
}

func (s *FormService) GetForm(id string) (*models.Form, error) {
	form, err := s.store.GetForm(id)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return nil, NewNotFoundError("form " + id + " not found")
	}
	return form, nil
}

func (s *FormService) UpdateForm(id string, upd FormUpdate) (*models.Form, error) {
	form, err := s.GetForm(id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, NewFieldError(ErrorInvalidTitle, "title", "title must not be empty")
		}
		form.Title = title
	}
	if upd.Description != nil {
		form.Description = *upd.Description
	}
	if upd.AcceptsResponses != nil {
		form.AcceptsResponses = *upd.AcceptsResponses
	}
	form.UpdatedAt = s.now()
	if err := s.store.UpdateForm(form); err != nil {
		return nil, err
	}
	return form, nil
}

func (s *FormService) DeleteForm(id string) error {
	if _, err := s.GetForm(id); err != nil {
		return err
	}
	return s.store.DeleteForm(id)
}

// AddQuestion validates the definition, enforces order uniqueness within
// the form and seeds the question's aggregate bucket.
func (s *FormService) AddQuestion(formID string, def QuestionDefinition) (*models.Question, error) {
	form, err := s.GetForm(formID)
	if err != nil {
		return nil, err
	}
	cfg, err := ValidateQuestionDefinition(def.Kind, def.Config, def.Title, def.Order)
	if err != nil {
		return nil, err
	}
	siblings, err := s.store.ListQuestions(form.ID)
	if err != nil {
		return nil, err
	}
	for _, sib := range siblings {
		if sib.Order == def.Order {
			return nil, NewFieldError(ErrorInvalidOrder, "order", "order "+strconv.Itoa(def.Order)+" already used by question "+sib.ID)
		}
	}
	now := s.now()
	q := &models.Question{
		ID:          s.idGenerator(),
		FormID:      form.ID,
		Kind:        def.Kind,
		Title:       strings.TrimSpace(def.Title),
		Description: def.Description,
		Required:    def.Required,
		Order:       def.Order,
		Config:      cfg,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertQuestion(q); err != nil {
		return nil, err
	}
	if err := s.agg.InitQuestion(q); err != nil {
		// The question exists either way; bucket creation retries lazily
		// on the first recorded answer.
		return q, nil
	}
	return q, nil
}

// UpdateQuestion re-validates the definition against the question's
// existing (immutable) kind. Aggregate stats are never recomputed for
// historical responses.
func (s *FormService) UpdateQuestion(questionID string, upd QuestionUpdate) (*models.Question, error) {
	q, err := s.store.GetQuestion(questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, NewNotFoundError("question " + questionID + " not found")
	}
	cfg, err := ValidateQuestionDefinition(q.Kind, upd.Config, upd.Title, upd.Order)
	if err != nil {
		return nil, err
	}
	siblings, err := s.store.ListQuestions(q.FormID)
	if err != nil {
		return nil, err
	}
	for _, sib := range siblings {
		if sib.ID != q.ID && sib.Order == upd.Order {
			return nil, NewFieldError(ErrorInvalidOrder, "order", "order "+strconv.Itoa(upd.Order)+" already used by question "+sib.ID)
		}
	}
	q.Title = strings.TrimSpace(upd.Title)
	q.Description = upd.Description
	q.Required = upd.Required
	q.Order = upd.Order
	q.Config = cfg
	q.UpdatedAt = s.now()
	if err := s.store.UpdateQuestion(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *FormService) DeleteQuestion(questionID string) error {
	q, err := s.store.GetQuestion(questionID)
	if err != nil {
		return err
	}
	if q == nil {
		return NewNotFoundError("question " + questionID + " not found")
	}
	return s.store.DeleteQuestion(questionID)
}

// ReorderQuestions assigns each listed question its position index as the
// new order. Every ID must belong to the form and every question must be
// listed, so uniqueness holds by construction.
func (s *FormService) ReorderQuestions(formID string, orderedIDs []string) error {
	if len(orderedIDs) == 0 {
		return NewFieldError(ErrorInvalidOrder, "order", "order list must not be empty")
	}
	questions, err := s.store.ListQuestions(formID)
	if err != nil {
		return err
	}
	byID := make(map[string]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	if len(orderedIDs) != len(questions) {
		return NewFieldError(ErrorInvalidOrder, "order", "order list must name every question exactly once")
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, ok := byID[id]; !ok {
			return NewAnswerError(ErrorUnknownQuestion, id, "question "+id+" does not belong to form "+formID)
		}
		if _, dup := seen[id]; dup {
			return NewFieldError(ErrorInvalidOrder, "order", "question "+id+" listed twice")
		}
		seen[id] = struct{}{}
	}
	now := s.now()
	for pos, id := range orderedIDs {
		q := byID[id]
		if q.Order == pos {
			continue
		}
		q.Order = pos
		q.UpdatedAt = now
		if err := s.store.UpdateQuestion(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *FormService) ListQuestions(formID string) ([]*models.Question, error) {
	if _, err := s.GetForm(formID); err != nil {
		return nil, err
	}
	questions, err := s.store.ListQuestions(formID)
	if err != nil {
		return nil, err
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	return questions, nil
}

func (s *FormService) ListResponses(formID string) ([]*models.Response, error) {
	if _, err := s.GetForm(formID); err != nil {
		return nil, err
	}
	return s.store.ListResponses(formID)
}

func (s *FormService) GetResponse(id string) (*models.Response, error) {
	r, err := s.store.GetResponse(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, NewNotFoundError("response " + id + " not found")
	}
	return r, nil
}

// Stats reports submission totals, activity over the last 7 days and the
// average share of questions answered per response.
func (s *FormService) Stats(formID string) (*models.FormStats, error) {
	questions, err := s.ListQuestions(formID)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponses(formID)
	if err != nil {
		return nil, err
	}
	stats := &models.FormStats{TotalResponses: len(responses)}
	cutoff := s.now().AddDate(0, 0, -7)
	completion := 0.0
	for _, r := range responses {
		if r.SubmittedAt.After(cutoff) {
			stats.RecentResponses++
		}
		if len(questions) > 0 {
			completion += float64(len(r.Answers)) / float64(len(questions))
		}
	}
	if len(responses) > 0 {
		stats.CompletionRate = completion / float64(len(responses))
	}
	return stats, nil
}

// QuestionStats returns the aggregate snapshot for one question.
func (s *FormService) QuestionStats(questionID string) (models.AggregateStats, error) {
	q, err := s.store.GetQuestion(questionID)
	if err != nil {
		return models.AggregateStats{}, err
	}
	if q == nil {
		return models.AggregateStats{}, NewNotFoundError("question " + questionID + " not found")
	}
	return s.agg.Snapshot(q)
}
