package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/samcharles93/quantchat/internal/logger"
	"github.com/samcharles93/quantchat/internal/metrics"
	"github.com/samcharles93/quantchat/internal/model"
	"github.com/samcharles93/quantchat/internal/tokenizer"
)

// Round is the outcome of one user turn. Truncated is set when generation
// stopped on the length budget rather than the end-of-sequence token.
type Round struct {
	Index       int          `json:"index"`
	Input       string       `json:"input"`
	InputTokens int          `json:"input_tokens"`
	Generated   int          `json:"generated"`
	Text        string       `json:"text"`
	Finish      FinishReason `json:"finish"`
	Truncated   bool         `json:"truncated"`
	Evicted     int          `json:"evicted"`
	HistoryLen  int          `json:"history_len"`
	Stats       Stats        `json:"stats"`
}

// Session drives a multi-round conversation over one History. A Session is
// not safe for concurrent use.
type Session struct {
	cfg     Config
	tok     tokenizer.Tokenizer
	gen     Generator
	history *History
	log     logger.Logger

	state      State
	rounds     int
	transcript Transcript
}

// NewSession checks that scorer and tokenizer share one vocabulary and
// returns a session in the Idle state.
func NewSession(scorer model.Scorer, sampler TokenSampler, tok tokenizer.Tokenizer, cfg Config, log logger.Logger) (*Session, error) {
	if scorer == nil || sampler == nil || tok == nil {
		return nil, errors.New("inference: scorer, sampler and tokenizer are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tok.VocabSize() != scorer.VocabSize() {
		return nil, fmt.Errorf("%w: tokenizer has %d ids, scorer has %d", ErrVocabMismatch, tok.VocabSize(), scorer.VocabSize())
	}
	if ms, ok := scorer.(interface{ MaxSeqLen() int }); ok && cfg.MaxLength > ms.MaxSeqLen() {
		return nil, fmt.Errorf("inference: max length %d exceeds scorer limit %d", cfg.MaxLength, ms.MaxSeqLen())
	}
	name := "model"
	if n, ok := scorer.(interface{ Name() string }); ok {
		name = n.Name()
	}
	log = logger.OrDiscard(log).With("component", "session")
	return &Session{
		cfg: cfg,
		tok: tok,
		gen: Generator{
			Scorer:     scorer,
			Sampler:    sampler,
			EOSTokenID: tok.EOSTokenID(),
			Label:      cfg.Label,
		},
		history:    NewHistory(cfg.MaxLength),
		log:        log,
		state:      StateIdle,
		transcript: Transcript{Model: name, Started: time.Now().UTC()},
	}, nil
}

func (s *Session) State() State      { return s.state }
func (s *Session) Rounds() int       { return s.rounds }
func (s *Session) Config() Config    { return s.cfg }
func (s *Session) History() *History { return s.history }
func (s *Session) ModelName() string { return s.transcript.Model }

// Transcript returns a copy of the rounds completed so far.
func (s *Session) Transcript() Transcript {
	t := s.transcript
	t.Turns = append([]Turn(nil), s.transcript.Turns...)
	return t
}

// Submit runs one round for text. On any error the history is left exactly
// as it was before the call and the session stays ready for input.
func (s *Session) Submit(ctx context.Context, text string) (Round, error) {
	switch s.state {
	case StateSessionComplete:
		return Round{}, ErrSessionComplete
	case StateGenerating:
		return Round{}, errors.New("inference: round already in progress")
	}
	s.state = StateAwaitingInput

	ids, err := safeEncode(s.tok, text)
	if err != nil {
		metrics.RecordRoundError("encode")
		return Round{}, fmt.Errorf("encode input: %w", err)
	}
	input := append(ids, s.tok.Config().EndOfInputTokenID)

	snap := s.history.Snapshot()
	evicted, err := s.makeRoom(len(input))
	if err == nil {
		err = s.history.Append(input...)
	}
	if err != nil {
		s.history.Restore(snap)
		metrics.RecordRoundError("context_full")
		return Round{}, err
	}

	s.state = StateGenerating
	s.log.Debug("round started", "round", s.rounds+1, "input_tokens", len(input), "history", s.history.Len())
	res, err := s.gen.Run(ctx, s.history, s.cfg.MaxNewTokens)
	if err != nil {
		return Round{}, s.abort(snap, err)
	}
	reply, err := s.tok.Decode(res.Tokens)
	if err != nil {
		return Round{}, s.abort(snap, fmt.Errorf("decode output: %w", err))
	}

	s.state = StateTurnComplete
	s.rounds++
	round := Round{
		Index:       s.rounds,
		Input:       text,
		InputTokens: len(input),
		Generated:   len(res.Tokens),
		Text:        reply,
		Finish:      res.Finish,
		Truncated:   res.Finish == FinishLength,
		Evicted:     evicted,
		HistoryLen:  s.history.Len(),
		Stats:       res.Stats,
	}
	s.transcript.add(round)
	metrics.RecordRound(res.Finish.String(), round.HistoryLen)
	metrics.RecordEviction(evicted)
	s.log.Info("round complete",
		"round", round.Index,
		"generated", round.Generated,
		"finish", round.Finish.String(),
		"history", round.HistoryLen,
		"tps", fmt.Sprintf("%.1f", res.Stats.TPS),
	)

	if s.cfg.Rounds > 0 && s.rounds >= s.cfg.Rounds {
		s.state = StateSessionComplete
	} else {
		s.state = StateAwaitingInput
	}
	return round, nil
}

func (s *Session) abort(snap []int, err error) error {
	s.history.Restore(snap)
	s.state = StateAwaitingInput
	cause := "sampler"
	if errors.Is(err, ErrScorer) {
		cause = "scorer"
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		cause = "cancelled"
	}
	metrics.RecordRoundError(cause)
	s.log.Warn("round aborted", "round", s.rounds+1, "error", err)
	return err
}

// makeRoom ensures n input tokens fit. Under PolicyStop nothing is evicted;
// under PolicySlide the oldest tokens go in SlideChunk steps until the input
// and MaxNewTokens fit.
func (s *Session) makeRoom(n int) (int, error) {
	if s.cfg.Policy != PolicySlide {
		if n > s.history.Remaining() {
			return 0, fmt.Errorf("%w: input of %d tokens, %d free", ErrContextFull, n, s.history.Remaining())
		}
		return 0, nil
	}
	need := n + s.cfg.MaxNewTokens
	if need > s.history.Cap() {
		return 0, fmt.Errorf("%w: input of %d tokens cannot fit with %d new tokens in %d", ErrContextFull, n, s.cfg.MaxNewTokens, s.history.Cap())
	}
	deficit := need - s.history.Remaining()
	if deficit <= 0 {
		return 0, nil
	}
	chunks := (deficit + s.cfg.SlideChunk - 1) / s.cfg.SlideChunk
	evicted := s.history.EvictFront(chunks * s.cfg.SlideChunk)
	s.log.Debug("history evicted", "tokens", evicted, "history", s.history.Len())
	return evicted, nil
}

// InputSource supplies user input. Next blocks until a line is available,
// ctx is done, or the source is exhausted (io.EOF).
type InputSource interface {
	Next(ctx context.Context) (string, error)
}

// Run reads input from src and submits it until the configured number of
// rounds is reached or src reports io.EOF. onRound, when set, sees every
// completed round; a non-nil return stops the session with that error.
func (s *Session) Run(ctx context.Context, src InputSource, onRound func(Round) error) error {
	if s.state == StateIdle {
		s.state = StateAwaitingInput
	}
	for s.state != StateSessionComplete {
		text, err := s.next(ctx, src)
		if errors.Is(err, io.EOF) {
			s.state = StateSessionComplete
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		round, err := s.Submit(ctx, text)
		if err != nil {
			return err
		}
		if onRound != nil {
			if err := onRound(round); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) next(ctx context.Context, src InputSource) (string, error) {
	if s.cfg.InputTimeout <= 0 {
		return src.Next(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.InputTimeout)
	defer cancel()
	return src.Next(ctx)
}

func safeEncode(tok tokenizer.Tokenizer, text string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(text)
}
