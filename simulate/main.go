package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"leadqualdev/logger"
	"leadqualdev/session"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ProspectPlayer produces the prospect's next message for a history.
type ProspectPlayer interface {
	Respond(ctx context.Context, history []session.Message) (string, session.Usage, error)
}

// Log is the complete record of one simulated conversation, shaped like the
// transcript files the harness has always produced.
type Log struct {
	ConversationID     string                `json:"conversation_id"`
	ProspectProfile    ProspectProfile       `json:"prospect_profile"`
	Messages           []session.Message     `json:"messages"`
	IntentDetection    *session.IntentResult `json:"intent_detection"`
	Outcome            session.Status        `json:"outcome"`
	TotalTokensUsed    int                   `json:"total_tokens_used"`
	ConversationLength int                   `json:"conversation_length"`
	IntentMatch        bool                  `json:"intent_match"`
	Timestamp          time.Time             `json:"timestamp"`
}

// Summary aggregates a finished batch.
type Summary struct {
	Requested       int
	Completed       int
	Outcomes        map[session.Status]int
	IntentMatches   int
	IntentMatchRate float64
	TotalTokens     int
	LogPath         string
}

type RunnerConnectProps struct {
	Logger   *logger.LogMiddleware
	Backend  session.Backend
	Detector session.Detector

	// NewProspect builds the LLM player for one conversation's persona.
	NewProspect func(systemPrompt string) ProspectPlayer

	NumSimulations int
	Workers        int64
	LogDir         string

	// Seed fixes the profile randomness; zero seeds from the clock.
	Seed int64
}

type Runner struct {
	logger      *logger.LogMiddleware
	backend     session.Backend
	detector    session.Detector
	newProspect func(systemPrompt string) ProspectPlayer

	numSimulations int
	workers        int64
	logDir         string
	seed           int64
}

func Connect(ctx context.Context, args RunnerConnectProps) *Runner {
	tracer := otel.Tracer("simulate/Connect")
	_, span := tracer.Start(ctx, "Connect")
	defer span.End()

	seed := args.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	span.SetAttributes(
		attribute.Int("num_simulations", args.NumSimulations),
		attribute.Int64("workers", args.Workers),
	)

	return &Runner{
		logger:         args.Logger,
		backend:        args.Backend,
		detector:       args.Detector,
		newProspect:    args.NewProspect,
		numSimulations: args.NumSimulations,
		workers:        args.Workers,
		logDir:         args.LogDir,
		seed:           seed,
	}
}

// Run executes the batch, writes the transcript file and returns aggregate
// statistics. Individual conversation failures are logged and skipped so one
// bad run cannot sink the batch.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	tracer := otel.Tracer("simulate/Run")
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	r.logger.Logger(ctx).Info("[Simulate] Starting simulated conversations",
		zap.Int("num_simulations", r.numSimulations),
		zap.Int64("workers", r.workers),
	)

	sem := semaphore.NewWeighted(r.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	logs := make([]Log, 0, r.numSimulations)

	for i := 0; i < r.numSimulations; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("simulation batch canceled: %w", err)
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)

			rng := rand.New(rand.NewSource(r.seed + int64(i)))
			log, err := r.runOne(ctx, i, rng)
			if err != nil {
				r.logger.Logger(ctx).Error("[Simulate] Conversation failed",
					zap.Error(err),
					zap.Int("conversation_index", i),
				)
				return
			}

			mu.Lock()
			logs = append(logs, *log)
			mu.Unlock()
		}(i)
	}

	wg.Wait()

	logPath, err := r.saveLogs(ctx, logs)
	if err != nil {
		return nil, err
	}

	summary := summarize(logs, r.numSimulations, logPath)

	r.logger.Logger(ctx).Info("[Simulate] Batch complete",
		zap.Int("completed", summary.Completed),
		zap.Int("requested", summary.Requested),
		zap.Float64("intent_match_rate", summary.IntentMatchRate),
		zap.Int("total_tokens", summary.TotalTokens),
		zap.String("log_path", logPath),
	)

	return summary, nil
}

func (r *Runner) runOne(ctx context.Context, index int, rng *rand.Rand) (*Log, error) {
	profile := GenerateProfile(rng)
	prospect := r.newProspect(ProspectPrompt(profile))

	ctrl := session.NewController(session.NewControllerProps{
		Backend:  r.backend,
		Detector: r.detector,
		Logger:   r.logger,
		IDPrefix: fmt.Sprintf("conv_%04d", index),
	})

	if _, err := ctrl.Start(ctx); err != nil {
		return nil, fmt.Errorf("could not start conversation: %w", err)
	}

	prospectTokens := 0
	for {
		snap, err := ctrl.Snapshot()
		if err != nil {
			return nil, err
		}

		text, usage, err := prospect.Respond(ctx, snap.Messages)
		if err != nil {
			return nil, fmt.Errorf("prospect model failed: %w", err)
		}
		prospectTokens += usage.TotalTokens

		res, err := ctrl.Submit(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("submit failed: %w", err)
		}
		if res.Status.Terminal() {
			break
		}
	}

	record, err := ctrl.Export()
	if err != nil {
		return nil, err
	}

	botMessages := 0
	for _, msg := range record.Messages {
		if msg.Role == session.RoleBot {
			botMessages++
		}
	}

	intentMatch := record.Intent != nil && record.Intent.Category == profile.TrueIntent

	return &Log{
		ConversationID:     record.ID,
		ProspectProfile:    profile,
		Messages:           record.Messages,
		IntentDetection:    record.Intent,
		Outcome:            record.Status,
		TotalTokensUsed:    record.Usage.TotalTokens + prospectTokens,
		ConversationLength: botMessages,
		IntentMatch:        intentMatch,
		Timestamp:          record.CreatedAt,
	}, nil
}

func (r *Runner) saveLogs(ctx context.Context, logs []Log) (string, error) {
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create log directory: %w", err)
	}

	filename := fmt.Sprintf("conversation_transcripts_%s.json", time.Now().Format("20060102_150405"))
	path := filepath.Join(r.logDir, filename)

	data, err := json.MarshalIndent(logs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("could not encode transcripts: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("could not write transcripts: %w", err)
	}

	r.logger.Logger(ctx).Info("[Simulate] Transcripts saved", zap.String("path", path))
	return path, nil
}

func summarize(logs []Log, requested int, logPath string) *Summary {
	summary := &Summary{
		Requested: requested,
		Completed: len(logs),
		Outcomes:  make(map[session.Status]int),
		LogPath:   logPath,
	}
	for _, log := range logs {
		summary.Outcomes[log.Outcome]++
		summary.TotalTokens += log.TotalTokensUsed
		if log.IntentMatch {
			summary.IntentMatches++
		}
	}
	if summary.Completed > 0 {
		summary.IntentMatchRate = float64(summary.IntentMatches) / float64(summary.Completed)
	}
	return summary
}
