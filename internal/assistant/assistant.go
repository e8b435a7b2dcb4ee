// Package assistant answers staff questions about a job with a local LLM.
// Prompts are rendered from a stored template with the job and the recent
// conversation; answers must validate against the template's JSON schema
// before they are stored.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/fieldops/internal/config"
	"github.com/garnizeh/fieldops/internal/lifecycle"
	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/ollama"
	"github.com/garnizeh/fieldops/pkg/repository"
)

const templateName = "assistant"

var (
	ErrEmptyQuestion   = errors.New("question is required")
	ErrInvalidResponse = errors.New("assistant returned an invalid answer")
)

// Generator is the subset of the Ollama client the assistant uses.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (ollama.GenerateResult, error)
}

type Assistant struct {
	gen    Generator
	jobs   repository.JobRepo
	chat   repository.ChatRepo
	loader *Loader
	cfg    config.AssistantConfig
	logger *slog.Logger

	template      string
	schemaVersion string
	now           func() time.Time
}

// Reply is the stored exchange for one question.
type Reply struct {
	Question models.ChatMessage `json:"question"`
	Answer   *Answer            `json:"answer"`
	Message  models.ChatMessage `json:"message"`
}

// New loads the prompt template and the schemas. It fails when the
// configured template version is missing.
func New(ctx context.Context, gen Generator, cfg config.AssistantConfig, jobs repository.JobRepo, chat repository.ChatRepo, sr repository.SchemaRepo, tr repository.TemplateRepo, logger *slog.Logger) (*Assistant, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if sr == nil || tr == nil {
		return nil, errors.New("schema and template repos are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TemplateVersion == "" {
		cfg.TemplateVersion = "v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}

	loader, err := NewLoader(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("create loader: %w", err)
	}

	tpl, err := tr.GetTemplate(ctx, templateName, cfg.TemplateVersion)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tpl == nil || tpl.TemplateTxt == "" {
		return nil, fmt.Errorf("template %s:%s not found", templateName, cfg.TemplateVersion)
	}

	schemaVersion := tpl.Version
	if tpl.SchemaVer != nil && *tpl.SchemaVer != "" {
		schemaVersion = *tpl.SchemaVer
	}
	if _, ok := loader.GetSchema(schemaVersion); !ok {
		return nil, fmt.Errorf("no schema found for version %s", schemaVersion)
	}

	return &Assistant{
		gen:           gen,
		jobs:          jobs,
		chat:          chat,
		loader:        loader,
		cfg:           cfg,
		logger:        logger,
		template:      tpl.TemplateTxt,
		schemaVersion: schemaVersion,
		now:           time.Now,
	}, nil
}

// Ask answers a question about a job assigned to the session's staff member.
// Nothing is stored unless the model's answer validates.
func (a *Assistant) Ask(ctx context.Context, s lifecycle.Session, jobID, question string) (*Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	job, err := a.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.AssignedTo != s.StaffID {
		return nil, &lifecycle.ValidationError{Kind: lifecycle.ErrNotAssignee, Message: "this job is assigned to someone else"}
	}

	history, err := a.chat.ListMessages(ctx, jobID, a.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	prompt, err := ollama.RenderTemplate(a.template, map[string]any{
		"Job":      job,
		"History":  history,
		"Question": question,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	ctxReq, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	out, err := a.gen.Generate(ctxReq, a.cfg.Model, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	answer, raw, err := a.validate(ctxReq, out.Text)
	if err != nil {
		a.logger.Warn("assistant answer rejected", "job_id", jobID, "err", err, "raw", out.Text)
		return nil, err
	}

	asked := a.now().UTC()
	q := models.ChatMessage{ID: uuid.NewString(), JobID: jobID, StaffID: s.StaffID, Role: models.RoleStaff, Content: question, Created: asked}
	if err := a.chat.CreateMessage(ctx, &q); err != nil {
		return nil, fmt.Errorf("store question: %w", err)
	}
	m := models.ChatMessage{ID: uuid.NewString(), JobID: jobID, StaffID: s.StaffID, Role: models.RoleAssistant, Content: raw, Created: asked.Add(time.Millisecond)}
	if err := a.chat.CreateMessage(ctx, &m); err != nil {
		return nil, fmt.Errorf("store answer: %w", err)
	}

	a.logger.Info("assistant answered", "job_id", jobID, "staff_id", s.StaffID, "escalate", answer.Escalate)
	return &Reply{Question: q, Answer: answer, Message: m}, nil
}

// History returns the last limit messages of a job, oldest first.
func (a *Assistant) History(ctx context.Context, s lifecycle.Session, jobID string, limit int) ([]models.ChatMessage, error) {
	job, err := a.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.AssignedTo != s.StaffID {
		return nil, &lifecycle.ValidationError{Kind: lifecycle.ErrNotAssignee, Message: "this job is assigned to someone else"}
	}
	msgs, err := a.chat.ListMessages(ctx, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// ReloadSchemas recompiles the schemas from the store.
func (a *Assistant) ReloadSchemas(ctx context.Context) error {
	return a.loader.Reload(ctx)
}

func (a *Assistant) validate(ctx context.Context, text string) (*Answer, string, error) {
	answer, raw, err := ParseAnswer(text)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	schema, ok := a.loader.GetSchema(a.schemaVersion)
	if !ok {
		return nil, "", fmt.Errorf("no schema found for version %s", a.schemaVersion)
	}
	verrs, err := schema.ValidateBytes(ctx, []byte(raw))
	if err != nil {
		return nil, "", fmt.Errorf("schema validate: %w", err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, v := range verrs {
			msgs = append(msgs, v.Message)
		}
		slices.Sort(msgs)
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidResponse, strings.Join(msgs, "; "))
	}
	return answer, raw, nil
}
