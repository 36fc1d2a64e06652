package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	chatsvc "github.com/surfsense/surfsense-backend/internal/chat"
	chatrepo "github.com/surfsense/surfsense-backend/internal/data/repos/chat"
	memrepo "github.com/surfsense/surfsense-backend/internal/data/repos/memory"
	spacerepo "github.com/surfsense/surfsense-backend/internal/data/repos/spaces"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domchat "github.com/surfsense/surfsense-backend/internal/domain/chat"
	"github.com/surfsense/surfsense-backend/internal/ingest"
	"github.com/surfsense/surfsense-backend/internal/jobs"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
	"github.com/surfsense/surfsense-backend/internal/platform/openai"
	"github.com/surfsense/surfsense-backend/internal/realtime/bus"
	"github.com/surfsense/surfsense-backend/internal/retrieval"
)

const (
	// runSlotStaleAfter: a run whose heartbeat is older than this is
	// abandoned and its slot may be taken over.
	runSlotStaleAfter = 2 * time.Minute
	runHeartbeatEvery = 30 * time.Second

	maxToolSteps    = 4
	historyTurns    = 20
	retrieveTopK    = 8
	memoryTopK      = 5
	excerptPerChunk = 900
)

// Runner executes the tool-calling agent loop, one run per thread at a
// time, checkpointing state after every node transition.
type Runner struct {
	db          *gorm.DB
	log         *logger.Logger
	threads     chatrepo.ThreadRepo
	checkpoints chatrepo.CheckpointRepo
	messages    chatrepo.MessageRepo
	podcasts    chatrepo.PodcastRepo
	memories    memrepo.MemoryRepo
	spaces      spacerepo.SearchSpaceRepo
	chat        *chatsvc.Service
	retriever   *retrieval.Retriever
	ai          openai.Client
	embedder    *ingest.Embedder
	enqueuer    *jobs.Enqueuer
	bus         bus.Bus
	tools       map[string]Tool
}

func NewRunner(
	db *gorm.DB,
	log *logger.Logger,
	threads chatrepo.ThreadRepo,
	checkpoints chatrepo.CheckpointRepo,
	messages chatrepo.MessageRepo,
	podcasts chatrepo.PodcastRepo,
	memories memrepo.MemoryRepo,
	spaces spacerepo.SearchSpaceRepo,
	chat *chatsvc.Service,
	retriever *retrieval.Retriever,
	ai openai.Client,
	embedder *ingest.Embedder,
	enqueuer *jobs.Enqueuer,
	b bus.Bus,
) *Runner {
	return &Runner{
		db:          db,
		log:         log.With("component", "AgentRunner"),
		threads:     threads,
		checkpoints: checkpoints,
		messages:    messages,
		podcasts:    podcasts,
		memories:    memories,
		spaces:      spaces,
		chat:        chat,
		retriever:   retriever,
		ai:          ai,
		embedder:    embedder,
		enqueuer:    enqueuer,
		bus:         b,
		tools:       defaultTools(),
	}
}

// Run is one live execution.
type Run struct {
	r       *Runner
	userID  uuid.UUID
	thread  *types.ChatThread
	space   *types.SearchSpace
	emitter *Emitter
	ai      openai.Client
	state   *State
	stepNo  int64
}

var errRunCancelled = errors.New("run cancelled by client")

// Run executes one agent turn for the thread. Rejected with a busy error
// when a live run already holds the thread's slot.
func (r *Runner) Run(ctx context.Context, userID, threadID uuid.UUID, userText string) error {
	if strings.TrimSpace(userText) == "" {
		return apierr.Validation(fmt.Errorf("message required"))
	}

	rows, err := r.threads.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{threadID})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return apierr.NotFound(fmt.Errorf("thread %s not found", threadID))
	}
	thread := rows[0]
	if thread.CreatedByID != userID {
		return apierr.PermissionDenied(fmt.Errorf("only the creator can run the agent"))
	}

	ok, err := r.threads.AcquireRunSlot(dbctx.Context{Ctx: ctx}, threadID, time.Now().UTC(), runSlotStaleAfter)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Busy(fmt.Errorf("a run is already in progress for this thread"))
	}

	// Cleanup must survive client cancellation.
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := r.threads.ReleaseRunSlot(dbctx.Context{Ctx: cleanupCtx}, threadID); err != nil {
			r.log.Warn("release run slot failed", "thread_id", threadID, "error", err)
		}
	}()

	hbCtx, stopHB := context.WithCancel(cleanupCtx)
	defer stopHB()
	go r.heartbeatLoop(hbCtx, threadID)

	spaceRows, err := r.spaces.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{thread.SearchSpaceID})
	if err != nil {
		return err
	}
	if len(spaceRows) == 0 {
		return apierr.NotFound(fmt.Errorf("search space %s not found", thread.SearchSpaceID))
	}

	run := &Run{
		r:       r,
		userID:  userID,
		thread:  thread,
		space:   spaceRows[0],
		emitter: NewEmitter(r.bus, threadID, r.log),
		ai:      openai.WithModel(r.ai, spaceRows[0].AnswerModel),
		state:   &State{Query: strings.TrimSpace(userText)},
	}

	// A crashed run leaves its checkpoint log behind; step numbers must
	// continue past it or the unique (thread_id, step_no) index rejects them.
	if latest, err := r.checkpoints.Latest(dbctx.Context{Ctx: ctx}, threadID); err != nil {
		return err
	} else if latest != nil {
		run.stepNo = latest.StepNo
	}

	if err := run.execute(ctx, cleanupCtx); err != nil {
		if errors.Is(err, errRunCancelled) {
			// Partial output is committed history; not an error outcome.
			return nil
		}
		run.emitter.Error(cleanupCtx, apierr.CodeOf(err), err.Error())
		return err
	}
	return nil
}

func (r *Runner) heartbeatLoop(ctx context.Context, threadID uuid.UUID) {
	t := time.NewTicker(runHeartbeatEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.threads.HeartbeatRun(dbctx.Context{Ctx: ctx}, threadID, time.Now().UTC()); err != nil {
				r.log.Warn("run heartbeat failed", "thread_id", threadID, "error", err)
			}
		}
	}
}

func (run *Run) execute(ctx, cleanupCtx context.Context) error {
	r := run.r

	if _, err := r.chat.AppendMessage(ctx, run.userID, run.thread.ID, domchat.RoleUser,
		[]domchat.ContentPart{{Type: domchat.PartText, Text: run.state.Query}}); err != nil {
		return err
	}

	if err := run.loadHistory(ctx); err != nil {
		return err
	}
	run.emitter.StateUpdate(ctx, "responding", nil)

	for step := 0; step < maxToolSteps; step++ {
		if err := run.checkCancelled(ctx, cleanupCtx); err != nil {
			return err
		}

		decision, err := run.route(ctx)
		if err != nil {
			return err
		}
		if err := run.checkpoint(ctx, NodeRoute); err != nil {
			return err
		}

		switch decision.Action {
		case "retrieve":
			if err := run.retrieve(ctx, decision.Query); err != nil {
				return err
			}
			if err := run.checkpoint(ctx, NodeRetrieve); err != nil {
				return err
			}
		case "answer":
			return run.answer(ctx, cleanupCtx)
		default:
			if err := run.callTool(ctx, decision.Action, decision.Args); err != nil {
				return err
			}
			if err := run.checkpoint(ctx, NodeTool); err != nil {
				return err
			}
		}
	}
	return run.answer(ctx, cleanupCtx)
}

// loadHistory carries prior turns into state. A cloned thread's first run
// bootstraps from the copied snapshot history and clears the flag.
func (run *Run) loadHistory(ctx context.Context) error {
	r := run.r
	dbc := dbctx.Context{Ctx: ctx}
	msgs, err := r.messages.ListByThread(dbc, run.thread.ID, 0, 500)
	if err != nil {
		return err
	}
	// The just-appended user message is the query, not history.
	if n := len(msgs); n > 0 && msgs[n-1].Role == domchat.RoleUser {
		msgs = msgs[:n-1]
	}
	run.state.History = historyFromMessages(msgs, historyTurns)

	if run.thread.NeedsHistoryBootstrap {
		if err := run.checkpoint(ctx, NodeBootstrap); err != nil {
			return err
		}
		if err := r.threads.UpdateFields(dbc, run.thread.ID, map[string]interface{}{
			"needs_history_bootstrap": false,
		}); err != nil {
			return err
		}
		run.thread.NeedsHistoryBootstrap = false
	}
	return nil
}

// routeDecision is the structured routing output.
type routeDecision struct {
	Action string
	Query  string
	Args   map[string]any
}

var routeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"action":    map[string]any{"type": "string"},
		"query":     map[string]any{"type": "string"},
		"args_json": map[string]any{"type": "string"},
	},
	"required":             []string{"action", "query", "args_json"},
	"additionalProperties": false,
}

func (run *Run) route(ctx context.Context) (*routeDecision, error) {
	var b strings.Builder
	b.WriteString("Decide the next step for answering the user.\n")
	b.WriteString("Actions: retrieve (search the knowledge base), answer (respond now)")
	for name, t := range run.r.tools {
		fmt.Fprintf(&b, ", %s (%s)", name, t.Description())
	}
	b.WriteString("\nReturn action, a search query or empty string, and tool args as a JSON object string (\"{}\" when none).")

	var user strings.Builder
	for _, h := range run.state.History {
		fmt.Fprintf(&user, "%s: %s\n", h.Role, h.Text)
	}
	fmt.Fprintf(&user, "user: %s\n", run.state.Query)
	if len(run.state.Retrieved) > 0 {
		fmt.Fprintf(&user, "\n%d sources already retrieved.\n", len(run.state.Retrieved))
	}
	for _, t := range run.state.Tools {
		fmt.Fprintf(&user, "tool %s already ran.\n", t.Tool)
	}

	obj, err := run.ai.GenerateJSON(ctx, b.String(), user.String(), "route_decision", routeSchema)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}

	decision := &routeDecision{Action: "answer", Args: map[string]any{}}
	if s, ok := obj["action"].(string); ok && s != "" {
		decision.Action = s
	}
	if s, ok := obj["query"].(string); ok {
		decision.Query = strings.TrimSpace(s)
	}
	if s, ok := obj["args_json"].(string); ok && strings.TrimSpace(s) != "" {
		_ = json.Unmarshal([]byte(s), &decision.Args)
	}

	if decision.Action != "retrieve" && decision.Action != "answer" {
		if _, ok := run.r.tools[decision.Action]; !ok {
			run.r.log.Warn("router picked unknown action, answering instead", "action", decision.Action)
			decision.Action = "answer"
		}
	}
	// Repeated retrieval without new information loops; answer instead.
	if decision.Action == "retrieve" && len(run.state.Retrieved) > 0 {
		decision.Action = "answer"
	}
	return decision, nil
}

func (run *Run) retrieve(ctx context.Context, query string) error {
	if query == "" {
		query = run.state.Query
	}
	ranked, err := run.r.retriever.Search(ctx, run.thread.SearchSpaceID, query, retrieval.Filters{}, retrieveTopK)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	for _, rd := range ranked {
		doc := RetrievedDoc{
			DocumentID: rd.Document.ID,
			Title:      rd.Document.Title,
			Excerpt:    chunkExcerpt(rd.Chunks),
		}
		run.state.Retrieved = append(run.state.Retrieved, doc)
		run.emitter.Citation(ctx, doc)
	}
	return nil
}

func chunkExcerpt(chunks []*types.Chunk) string {
	var b strings.Builder
	for _, ch := range chunks {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(ch.Content)
		if b.Len() >= excerptPerChunk {
			break
		}
	}
	runes := []rune(b.String())
	if len(runes) > excerptPerChunk {
		return string(runes[:excerptPerChunk])
	}
	return b.String()
}

func (run *Run) callTool(ctx context.Context, name string, args map[string]any) error {
	tool, ok := run.r.tools[name]
	if !ok {
		return fmt.Errorf("unknown tool %s", name)
	}

	run.emitter.ToolCallStart(ctx, name, args)
	result, err := tool.Invoke(ctx, run, args)

	outcome := ToolOutcome{Tool: name}
	if raw, mErr := json.Marshal(args); mErr == nil {
		outcome.Args = raw
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		outcome.Error = errMsg
	} else if raw, mErr := json.Marshal(result); mErr == nil {
		outcome.Result = raw
	}
	run.state.Tools = append(run.state.Tools, outcome)
	run.emitter.ToolCallEnd(ctx, name, result, errMsg)

	// Tool traffic is persisted history so reloads and clones replay it.
	parts := []domchat.ContentPart{{Type: domchat.PartToolCall, ToolName: name, Args: outcome.Args}}
	if outcome.Error == "" {
		parts = append(parts, domchat.ContentPart{Type: domchat.PartToolResult, ToolName: name, Result: outcome.Result})
	}
	if _, aErr := run.r.chat.AppendAgentMessage(ctx, run.thread.ID, domchat.RoleTool, parts); aErr != nil {
		return aErr
	}

	// A failed tool is an observation for the model, not a dead run.
	return nil
}

func (run *Run) answer(ctx, cleanupCtx context.Context) error {
	if err := run.checkCancelled(ctx, cleanupCtx); err != nil {
		return err
	}

	system := run.answerSystemPrompt(ctx)

	var user strings.Builder
	for _, h := range run.state.History {
		fmt.Fprintf(&user, "%s: %s\n\n", h.Role, h.Text)
	}
	if block := contextBlock(run.state.Retrieved); block != "" {
		fmt.Fprintf(&user, "Retrieved sources:\n%s\n\n", block)
	}
	for _, t := range run.state.Tools {
		if t.Error == "" && len(t.Result) > 0 {
			fmt.Fprintf(&user, "Tool %s result: %s\n\n", t.Tool, string(t.Result))
		}
	}
	fmt.Fprintf(&user, "User question: %s", run.state.Query)

	full, err := run.ai.StreamText(ctx, system, user.String(), func(delta string) {
		run.state.PartialText += delta
		run.emitter.TextDelta(ctx, delta)
	})
	if err != nil {
		if ctx.Err() != nil {
			return run.commitPartial(cleanupCtx)
		}
		return fmt.Errorf("answer: %w", err)
	}
	run.state.PartialText = full

	if err := run.checkpoint(ctx, NodeAnswer); err != nil {
		return err
	}

	msg, err := run.r.chat.AppendAgentMessage(cleanupCtx, run.thread.ID, domchat.RoleAssistant,
		[]domchat.ContentPart{{Type: domchat.PartText, Text: full}})
	if err != nil {
		return err
	}
	run.emitter.Done(cleanupCtx, msg.ID)

	// Clean completion clears the checkpoint log.
	if err := run.r.checkpoints.DeleteByThread(dbctx.Context{Ctx: cleanupCtx}, run.thread.ID); err != nil {
		run.r.log.Warn("clear checkpoints failed", "thread_id", run.thread.ID, "error", err)
	}
	return nil
}

func (run *Run) answerSystemPrompt(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("You are a research assistant answering from the user's personal knowledge base.\n")
	if run.space.CitationsEnabled && len(run.state.Retrieved) > 0 {
		b.WriteString("Cite sources inline using the exact anchors given, e.g. [citation:doc-<id>]. Only cite the provided sources.\n")
	} else {
		b.WriteString("Do not emit citation anchors.\n")
	}
	if run.space.QnAInstructions != "" {
		fmt.Fprintf(&b, "\nWorkspace instructions:\n%s\n", run.space.QnAInstructions)
	}
	if memories := run.memoryContext(ctx); memories != "" {
		fmt.Fprintf(&b, "\nKnown about this user:\n%s\n", memories)
	}
	return b.String()
}

func (run *Run) memoryContext(ctx context.Context) string {
	qEmb, err := run.r.embedder.EmbedText(ctx, run.state.Query)
	if err != nil {
		return ""
	}
	spaceID := run.thread.SearchSpaceID
	rows, err := run.r.memories.SearchSimilar(dbctx.Context{Ctx: ctx}, run.userID, &spaceID, qEmb, memoryTopK)
	if err != nil || len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range rows {
		fmt.Fprintf(&b, "- (%s) %s\n", m.Category, m.Content)
	}
	return strings.TrimSpace(b.String())
}

// commitPartial persists whatever streamed before cancellation; partial
// messages are valid history.
func (run *Run) commitPartial(cleanupCtx context.Context) error {
	text := strings.TrimSpace(run.state.PartialText)
	if text != "" {
		msg, err := run.r.chat.AppendAgentMessage(cleanupCtx, run.thread.ID, domchat.RoleAssistant,
			[]domchat.ContentPart{{Type: domchat.PartText, Text: text}})
		if err != nil {
			return err
		}
		run.emitter.Done(cleanupCtx, msg.ID)
	}
	return errRunCancelled
}

func (run *Run) checkCancelled(ctx, cleanupCtx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return run.commitPartial(cleanupCtx)
}

func (run *Run) checkpoint(ctx context.Context, node string) error {
	run.stepNo++
	blob, err := run.state.Encode()
	if err != nil {
		return err
	}
	_, err = run.r.checkpoints.Append(dbctx.Context{Ctx: ctx}, &types.AgentCheckpoint{
		ThreadID:  run.thread.ID,
		StepNo:    run.stepNo,
		Node:      node,
		StateBlob: blob,
	})
	return err
}
